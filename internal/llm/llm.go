// Package llm wraps the chat-completion providers used to answer questions.
package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mindhub/mindlink/internal/config"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat prompt.
type Message struct {
	Role    string
	Content string
}

// Client generates a completion for a list of messages.
type Client interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

// New creates the client selected by cfg.Provider.
func New(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (Client, error) {
	var (
		c   Client
		err error
	)
	switch cfg.Provider {
	case "openai":
		c, err = NewOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Temperature)
	case "genai":
		c, err = NewGenAIClient(ctx, cfg.APIKey, cfg.Model, cfg.Temperature)
	case "static":
		c = NewStaticClient(StaticReply)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s (supported: openai, genai, static)", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Info("llm ready", zap.String("provider", cfg.Provider), zap.String("model", cfg.Model))
	}
	return c, nil
}
