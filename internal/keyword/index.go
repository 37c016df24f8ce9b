// Package keyword provides the lexical side of chunk retrieval.
package keyword

import "context"

// Entry is the searchable form of one chunk.
type Entry struct {
	ID       string // chunk ID
	Content  string
	FileName string
	Sector   string
}

// KeywordIndex defines keyword search over chunks.
type KeywordIndex interface {
	Index(ctx context.Context, entries []Entry) error
	// Replace swaps the whole index for entries.
	Replace(ctx context.Context, entries []Entry) error
	Search(ctx context.Context, query string, limit int) ([]*KeywordResult, error)
	Delete(ctx context.Context, ids []string) error
	DocCount() (uint64, error)
	Close() error
}

// KeywordResult is a single keyword search hit.
type KeywordResult struct {
	ID    string
	Score float64
}
