package vector

import (
	"context"
	"testing"

	"github.com/mindhub/mindlink/internal/config"
)

func TestNewVectorIndex_Memory(t *testing.T) {
	idx, err := NewVectorIndex("memory", 3)
	if err != nil {
		t.Fatalf("NewVectorIndex(memory): %v", err)
	}
	defer idx.Close()

	ctx := context.Background()
	if err := idx.Add(ctx, []string{"a"}, [][]float32{{1, 0, 0}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if idx.Size() != 1 {
		t.Errorf("Size=%d, want 1", idx.Size())
	}
}

func TestNewVectorIndex_Empty(t *testing.T) {
	idx, err := NewVectorIndex("", 3)
	if err != nil {
		t.Fatalf("NewVectorIndex(''): %v", err)
	}
	defer idx.Close()

	if idx.Size() != 0 {
		t.Errorf("Size=%d, want 0", idx.Size())
	}
}

func TestNewVectorIndex_Unknown(t *testing.T) {
	if _, err := NewVectorIndex("faiss", 3); err == nil {
		t.Error("expected error for unknown index type")
	}
}

func TestNewVectorIndex_InvalidDimension(t *testing.T) {
	if _, err := NewVectorIndex("memory", 0); err == nil {
		t.Error("expected error for zero dimension")
	}
}

func TestNew_FromConfig(t *testing.T) {
	ctx := context.Background()
	idx, err := New(ctx, config.VectorConfig{Backend: "memory"}, 4, nil)
	if err != nil {
		t.Fatalf("New(memory): %v", err)
	}
	if _, ok := idx.(*MemoryIndex); !ok {
		t.Errorf("expected *MemoryIndex, got %T", idx)
	}
	if _, err := New(ctx, config.VectorConfig{Backend: "annoy"}, 4, nil); err == nil {
		t.Error("expected error for unknown backend")
	}
	if _, err := New(ctx, config.VectorConfig{Backend: "pgvector", PostgresDSN: "postgres://x", Table: "bad;name"}, 4, nil); err == nil {
		t.Error("expected error for invalid table name")
	}
}
