// Package retrieval runs hybrid (semantic + keyword) search over indexed chunks.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mindhub/mindlink/internal/embedding"
	"github.com/mindhub/mindlink/internal/keyword"
	"github.com/mindhub/mindlink/internal/models"
	"github.com/mindhub/mindlink/internal/storage"
	"github.com/mindhub/mindlink/internal/vector"
)

// Options controls fusion weights and the default result count.
type Options struct {
	TopK           int
	SemanticWeight float64
	KeywordWeight  float64
}

// Retriever fuses semantic and keyword hits into ranked chunks.
type Retriever struct {
	storage      storage.DocumentStore
	embedder     embedding.Embedder
	vectorIndex  vector.VectorIndex
	keywordIndex keyword.KeywordIndex
	opts         Options
	logger       *zap.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Retriever) { r.logger = l }
}

// NewRetriever creates a retriever with the given dependencies.
func NewRetriever(
	store storage.DocumentStore,
	embedder embedding.Embedder,
	vectorIndex vector.VectorIndex,
	keywordIndex keyword.KeywordIndex,
	opts Options,
	options ...Option,
) *Retriever {
	if opts.TopK <= 0 {
		opts.TopK = 50
	}
	if opts.SemanticWeight == 0 && opts.KeywordWeight == 0 {
		opts.SemanticWeight, opts.KeywordWeight = 0.7, 0.3
	}
	r := &Retriever{
		storage:      store,
		embedder:     embedder,
		vectorIndex:  vectorIndex,
		keywordIndex: keywordIndex,
		opts:         opts,
		logger:       zap.NewNop(),
	}
	for _, o := range options {
		o(r)
	}
	return r
}

// Retrieve returns up to k chunks for query; k <= 0 uses the configured TopK. Chunks whose rows
// vanished between search and lookup are skipped.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]*models.RetrievedChunk, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is empty")
	}
	if k <= 0 {
		k = r.opts.TopK
	}

	var (
		keywordResults  []*keyword.KeywordResult
		semanticResults []*vector.VectorResult
	)
	g, gctx := errgroup.WithContext(ctx)
	if r.opts.KeywordWeight > 0 {
		g.Go(func() error {
			results, err := r.keywordIndex.Search(gctx, query, k)
			if err != nil {
				return fmt.Errorf("keyword search failed: %w", err)
			}
			keywordResults = results
			return nil
		})
	}
	if r.opts.SemanticWeight > 0 {
		g.Go(func() error {
			queryEmbedding, err := r.embedder.Embed(gctx, query)
			if err != nil {
				return fmt.Errorf("embedding failed: %w", err)
			}
			results, err := r.vectorIndex.Search(gctx, queryEmbedding, k)
			if err != nil {
				return fmt.Errorf("vector search failed: %w", err)
			}
			semanticResults = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := Fuse(
		NormalizeKeywordScores(keywordResults),
		NormalizeSemanticScores(semanticResults),
		r.opts.KeywordWeight, r.opts.SemanticWeight,
	)
	if len(fused) > k {
		fused = fused[:k]
	}

	docs := make(map[string]*models.Document)
	out := make([]*models.RetrievedChunk, 0, len(fused))
	for _, f := range fused {
		chunk, err := r.storage.GetChunk(ctx, f.ChunkID)
		if errors.Is(err, storage.ErrNotFound) {
			r.logger.Debug("stale chunk in index", zap.String("chunk_id", f.ChunkID))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load chunk %s: %w", f.ChunkID, err)
		}
		doc, ok := docs[chunk.DocumentID]
		if !ok {
			doc, err = r.storage.GetDocument(ctx, chunk.DocumentID)
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("load document %s: %w", chunk.DocumentID, err)
			}
			docs[chunk.DocumentID] = doc
		}
		if doc == nil {
			continue
		}
		out = append(out, &models.RetrievedChunk{
			Chunk:         chunk,
			Document:      doc,
			Score:         f.Score,
			KeywordScore:  f.KeywordScore,
			SemanticScore: f.SemanticScore,
			Rank:          len(out) + 1,
		})
	}
	return out, nil
}

// Sources collapses retrieved chunks to one entry per file, keeping the best score, in rank order.
func Sources(chunks []*models.RetrievedChunk) []models.Source {
	seen := make(map[string]int)
	var out []models.Source
	for _, c := range chunks {
		if i, ok := seen[c.Document.ID]; ok {
			if c.Score > out[i].Score {
				out[i].Score = c.Score
			}
			continue
		}
		seen[c.Document.ID] = len(out)
		out = append(out, models.Source{
			FileID:   c.Document.ID,
			FileName: c.Document.Name,
			Sector:   c.Document.Sector,
			Path:     c.Document.Path,
			Score:    c.Score,
		})
	}
	return out
}
