package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindhub/mindlink/internal/config"
)

func TestOpenAIClient_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var req struct {
			Model       string   `json:"model"`
			Temperature *float64 `json:"temperature"`
			Messages    []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o", req.Model)
		require.NotNil(t, req.Temperature, "temperature must be sent even when zero")
		assert.Less(t, *req.Temperature, 1e-6)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","choices":[{"index":0,"message":{"role":"assistant","content":"São 30 dias."}}]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient("sk-test", srv.URL+"/v1", "gpt-4o", 0)
	require.NoError(t, err)
	out, err := c.Generate(context.Background(), []Message{
		{Role: RoleSystem, Content: "Você é o MHA."},
		{Role: RoleUser, Content: "Quantos dias de férias?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "São 30 dias.", out)
}

func TestOpenAIClient_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient("sk-test", srv.URL+"/v1", "", 0)
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), []Message{{Role: RoleUser, Content: "oi"}})
	assert.ErrorContains(t, err, "no choices")
}

func TestStaticClient(t *testing.T) {
	c := NewStaticClient("ok")
	out, err := c.Generate(context.Background(), []Message{{Role: RoleUser, Content: "a"}})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Len(t, c.Calls(), 1)

	failing := NewStaticFunc(func([]Message) (string, error) { return "", errors.New("boom") })
	_, err = failing.Generate(context.Background(), nil)
	assert.EqualError(t, err, "boom")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Generate(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	c, err := New(ctx, config.LLMConfig{Provider: "static"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &StaticClient{}, c)

	_, err = New(ctx, config.LLMConfig{Provider: "openai"}, nil)
	assert.Error(t, err)
	_, err = New(ctx, config.LLMConfig{Provider: "genai"}, nil)
	assert.Error(t, err)
	_, err = New(ctx, config.LLMConfig{Provider: "ollama"}, nil)
	assert.ErrorContains(t, err, "unknown llm provider")
}
