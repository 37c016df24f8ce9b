package vector

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestMemoryIndex_AddSearch(t *testing.T) {
	idx, err := NewMemoryIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	vecs := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
	}
	ids := []string{"a", "b", "c"}
	if err := idx.Add(ctx, ids, vecs); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 3 {
		t.Errorf("Size=%d", idx.Size())
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "a" {
		t.Errorf("top result should be a, got %s", results[0].ID)
	}
}

func TestMemoryIndex_Remove(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Add(ctx, []string{"x", "y"}, [][]float32{{1, 0}, {0, 1}})
	if err := idx.Remove(ctx, []string{"x"}); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 1 {
		t.Errorf("expected size 1, got %d", idx.Size())
	}
}

func TestMemoryIndex_AddRejectsWrongDimension(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	err := idx.Add(ctx, []string{"ok", "bad"}, [][]float32{{1, 0}, {1, 0, 0}})
	if err == nil {
		t.Fatal("expected dimension error")
	}
	if idx.Size() != 0 {
		t.Errorf("partial add: size %d", idx.Size())
	}
	if _, err := idx.Search(ctx, []float32{1}, 1); err == nil {
		t.Error("expected query dimension error")
	}
}

func TestMemoryIndex_Replace(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Add(ctx, []string{"old"}, [][]float32{{1, 0}})
	if err := idx.Replace(ctx, []string{"n1", "n2"}, [][]float32{{0, 1}, {1, 0}}); err != nil {
		t.Fatal(err)
	}
	results, _ := idx.Search(ctx, []float32{1, 0}, 5)
	if len(results) != 2 || results[0].ID != "n2" {
		t.Fatalf("unexpected results after replace: %+v", results)
	}
	if err := idx.Replace(ctx, []string{"x"}, [][]float32{{1}}); err == nil {
		t.Error("expected error")
	}
	if idx.Size() != 2 {
		t.Errorf("failed replace changed contents: size %d", idx.Size())
	}
}

func TestMemoryIndex_SaveLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sub", "vectors.bin")
	idx, _ := NewMemoryIndex(3)
	_ = idx.Add(ctx, []string{"chunk-1", "chunk-2"}, [][]float32{{1, 0, 0}, {0, 0.6, 0.8}})
	if err := idx.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}

	loaded, _ := NewMemoryIndex(3)
	if err := loaded.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Size() != 2 {
		t.Fatalf("loaded size %d", loaded.Size())
	}
	results, _ := loaded.Search(ctx, []float32{0, 0.6, 0.8}, 1)
	if results[0].ID != "chunk-2" {
		t.Errorf("top = %s", results[0].ID)
	}

	wrong, _ := NewMemoryIndex(4)
	if err := wrong.Load(path); err == nil {
		t.Error("expected dimension mismatch on load")
	}
}

func TestMemoryIndex_LoadMissingFile(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	if err := idx.Load(filepath.Join(t.TempDir(), "none.bin")); err != nil {
		t.Errorf("missing file should not error: %v", err)
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := CosineSimilarity([]float32{1, 0}, []float32{-1, 0}); got != 0 {
		t.Errorf("opposite vectors = %f, want 0", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}); got != 0 {
		t.Errorf("mismatched lengths = %f, want 0", got)
	}
	if got := InnerProduct([]float32{0.5, 0.5}, []float32{1, 1}); got != 1 {
		t.Errorf("InnerProduct = %f", got)
	}
}
