// Package assistant answers questions over the knowledge base and proposes document edits.
// Each session keeps a bounded conversation memory so follow-ups like "no mesmo arquivo"
// resolve against the previous turn.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mindhub/mindlink/internal/command"
	"github.com/mindhub/mindlink/internal/llm"
	"github.com/mindhub/mindlink/internal/models"
	"github.com/mindhub/mindlink/internal/retrieval"
	"github.com/mindhub/mindlink/pkg/utils"
)

// ErrEmptyQuestion is returned for blank questions.
var ErrEmptyQuestion = errors.New("question cannot be empty")

// Retriever returns the chunks most relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]*models.RetrievedChunk, error)
}

// Turn is one question and its answer.
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Answer is the assistant's reply. Suggestion is set when the reply carries a parseable edit
// suggestion; SuggestionError explains a suggestion block that could not be parsed.
type Answer struct {
	Text            string              `json:"answer"`
	Suggestion      *command.Suggestion `json:"suggestion,omitempty"`
	SuggestionError string              `json:"suggestion_error,omitempty"`
	Sources         []models.Source     `json:"sources"`
}

// Options configures retrieval depth and memory.
type Options struct {
	TopK            int
	MaxHistoryTurns int
	// Condense rewrites follow-up questions into standalone ones before retrieval.
	Condense bool
}

// Assistant combines retrieval, the chat model and per-session memory.
type Assistant struct {
	retriever Retriever
	llm       llm.Client
	opts      Options
	logger    *zap.Logger

	mu       sync.Mutex
	sessions map[string][]Turn
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Assistant) { a.logger = l }
}

// New creates an Assistant.
func New(r Retriever, client llm.Client, opts Options, options ...Option) *Assistant {
	if opts.MaxHistoryTurns <= 0 {
		opts.MaxHistoryTurns = 10
	}
	a := &Assistant{
		retriever: r,
		llm:       client,
		opts:      opts,
		logger:    zap.NewNop(),
		sessions:  make(map[string][]Turn),
	}
	for _, o := range options {
		o(a)
	}
	return a
}

// Ask answers question within the conversation of sessionID.
func (a *Assistant) Ask(ctx context.Context, sessionID, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	history := a.History(sessionID)

	query := question
	if a.opts.Condense && len(history) > 0 {
		query = a.condense(ctx, history, question)
	}
	chunks, err := a.retriever.Retrieve(ctx, query, a.opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}

	text, err := a.llm.Generate(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: SystemPrompt},
		{Role: llm.RoleUser, Content: userPrompt(history, chunks, question)},
	})
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	text = strings.TrimSpace(text)

	ans := &Answer{Text: text, Sources: retrieval.Sources(chunks)}
	switch s, err := command.ParseSuggestion(text); {
	case err == nil:
		ans.Suggestion = s
	case !errors.Is(err, command.ErrNoSuggestion):
		ans.SuggestionError = err.Error()
		a.logger.Warn("unparseable edit suggestion", zap.String("session", sessionID), zap.Error(err))
	}

	a.remember(sessionID, Turn{Question: question, Answer: text})
	a.logger.Debug("question answered",
		zap.String("session", sessionID),
		zap.String("question", utils.Truncate(question, 80)),
		zap.Int("chunks", len(chunks)),
		zap.Bool("suggestion", ans.Suggestion != nil))
	return ans, nil
}

// condense asks the model for a standalone version of a follow-up question. The original
// question is used when the model fails.
func (a *Assistant) condense(ctx context.Context, history []Turn, question string) string {
	out, err := a.llm.Generate(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: fmt.Sprintf(condensePrompt, formatHistory(history), question)},
	})
	out = strings.TrimSpace(out)
	if err != nil || out == "" {
		a.logger.Warn("question condensing failed", zap.Error(err))
		return question
	}
	return out
}

// History returns a copy of the remembered turns of sessionID, oldest first.
func (a *Assistant) History(sessionID string) []Turn {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Turn(nil), a.sessions[sessionID]...)
}

func (a *Assistant) remember(sessionID string, t Turn) {
	a.mu.Lock()
	defer a.mu.Unlock()
	turns := append(a.sessions[sessionID], t)
	if n := len(turns) - a.opts.MaxHistoryTurns; n > 0 {
		turns = append([]Turn(nil), turns[n:]...)
	}
	a.sessions[sessionID] = turns
}

// Reset forgets the conversation of sessionID.
func (a *Assistant) Reset(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, sessionID)
}

// Clear forgets every conversation. Used after the knowledge base is rebuilt.
func (a *Assistant) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions = make(map[string][]Turn)
}

// Sessions returns the number of conversations in memory.
func (a *Assistant) Sessions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}
