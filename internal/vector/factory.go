package vector

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mindhub/mindlink/internal/config"
)

// IndexType represents the vector backend.
type IndexType string

const (
	// IndexTypeMemory keeps vectors in process and persists them to a file.
	IndexTypeMemory IndexType = "memory"
	// IndexTypePGVector stores vectors in PostgreSQL with the pgvector extension.
	IndexTypePGVector IndexType = "pgvector"
)

// NewVectorIndex creates an in-memory index. Only "memory" and "" are accepted; pgvector
// needs a connection and is created through New.
func NewVectorIndex(indexType string, dimensions int) (VectorIndex, error) {
	switch IndexType(indexType) {
	case IndexTypeMemory, "":
		return NewMemoryIndex(dimensions)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory, pgvector)", indexType)
	}
}

// New creates the vector index selected by cfg.Backend.
func New(ctx context.Context, cfg config.VectorConfig, dimensions int, logger *zap.Logger) (VectorIndex, error) {
	switch IndexType(cfg.Backend) {
	case IndexTypeMemory, "":
		return NewMemoryIndex(dimensions)
	case IndexTypePGVector:
		return NewPGVectorIndex(ctx, cfg.PostgresDSN, cfg.Table, dimensions, logger)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory, pgvector)", cfg.Backend)
	}
}
