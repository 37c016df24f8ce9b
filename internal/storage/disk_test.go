package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func writeBytes(t *testing.T, path string, n int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, make([]byte, n), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestFootprint(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "mindlink.db")
	writeBytes(t, db, 100)
	writeBytes(t, db+"-wal", 20)
	writeBytes(t, filepath.Join(dir, "bleve", "store", "root.bolt"), 7)
	writeBytes(t, filepath.Join(dir, "bleve", "index_meta.json"), 3)
	writeBytes(t, filepath.Join(dir, "vectors.bin"), 50)

	tests := []struct {
		name  string
		db    string
		extra []string
		want  int64
	}{
		{"database with wal", db, nil, 120},
		{"all indices", db, []string{filepath.Join(dir, "bleve"), filepath.Join(dir, "vectors.bin")}, 180},
		{"missing paths count zero", filepath.Join(dir, "none.db"), []string{filepath.Join(dir, "gone"), ""}, 0},
		{"in-memory database", ":memory:", []string{filepath.Join(dir, "vectors.bin")}, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Footprint(tt.db, tt.extra...)
			if err != nil {
				t.Fatalf("Footprint: %v", err)
			}
			if got != tt.want {
				t.Errorf("Footprint = %d, want %d", got, tt.want)
			}
		})
	}
}
