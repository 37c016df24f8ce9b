// Package vector stores chunk embeddings and answers nearest-neighbour queries.
package vector

import "context"

// VectorIndex defines vector storage and similarity search.
type VectorIndex interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	// Replace swaps the whole contents of the index in one step.
	Replace(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Remove(ctx context.Context, ids []string) error
	Save(path string) error
	Load(path string) error
	Size() int
	Close() error
}

// VectorResult is a single vector search hit. ID is a chunk ID.
type VectorResult struct {
	ID    string
	Score float64 // cosine similarity for normalized vectors
}
