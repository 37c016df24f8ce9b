package llm

import (
	"context"
	"sync"
)

// StaticReply is the offline answer used by the "static" provider.
const StaticReply = "Modo offline: nenhum modelo de linguagem configurado."

// ReplyFunc computes a reply from the prompt.
type ReplyFunc func(messages []Message) (string, error)

// StaticClient answers without calling any provider. It records every prompt it receives.
type StaticClient struct {
	reply ReplyFunc
	mu    sync.Mutex
	calls [][]Message
}

// NewStaticClient returns a client that always replies with text.
func NewStaticClient(text string) *StaticClient {
	return NewStaticFunc(func([]Message) (string, error) { return text, nil })
}

// NewStaticFunc returns a client whose replies come from fn.
func NewStaticFunc(fn ReplyFunc) *StaticClient {
	return &StaticClient{reply: fn}
}

// Generate implements Client.
func (c *StaticClient) Generate(ctx context.Context, messages []Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	c.calls = append(c.calls, append([]Message(nil), messages...))
	c.mu.Unlock()
	return c.reply(messages)
}

// Calls returns the prompts received so far.
func (c *StaticClient) Calls() [][]Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]Message(nil), c.calls...)
}
