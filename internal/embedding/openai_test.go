package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindhub/mindlink/internal/config"
)

func TestOpenAIEmbedder_EmbedBatchOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)
		assert.Len(t, req.Input, 2)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[
			{"object":"embedding","index":1,"embedding":[0,1]},
			{"object":"embedding","index":0,"embedding":[1,0]}
		],"model":"text-embedding-3-small"}`))
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder("sk-test", srv.URL+"/v1", "text-embedding-3-small", 2)
	require.NoError(t, err)
	out, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, out)
}

func TestOpenAIEmbedder_DimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1,2,3]}]}`))
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder("sk-test", srv.URL+"/v1", "m", 2)
	require.NoError(t, err)
	_, err = e.Embed(context.Background(), "x")
	assert.ErrorContains(t, err, "dimension mismatch")
}

func TestOpenAIEmbedder_RequiresKey(t *testing.T) {
	_, err := NewOpenAIEmbedder("", "", "m", 2)
	assert.Error(t, err)
}

func TestNew_Providers(t *testing.T) {
	ctx := context.Background()
	e, err := New(ctx, config.EmbeddingConfig{Provider: "mock", Dimensions: 8, CacheSize: 4}, nil)
	require.NoError(t, err)
	assert.IsType(t, &CachedEmbedder{}, e)
	assert.Equal(t, 8, e.Dimensions())

	e, err = New(ctx, config.EmbeddingConfig{Provider: "mock", Dimensions: 8}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MockEmbedder{}, e)

	_, err = New(ctx, config.EmbeddingConfig{Provider: "onnx"}, nil)
	assert.ErrorContains(t, err, "unknown embedding provider")

	_, err = New(ctx, config.EmbeddingConfig{Provider: "genai"}, nil)
	assert.Error(t, err)
}
