// Package models defines core data structures for documents, accounts, edits and student progress.
package models

import "time"

// Document is a knowledge-base file as indexed from the drive.
type Document struct {
	ID         string                 `json:"id" db:"id"`
	Name       string                 `json:"name" db:"name"`
	MimeType   string                 `json:"mime_type" db:"mime_type"`
	Path       string                 `json:"path" db:"path"`
	Sector     string                 `json:"sector" db:"sector"`
	Origin     string                 `json:"origin" db:"origin"`
	Content    string                 `json:"-" db:"content"`
	Metadata   map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	ModifiedAt time.Time              `json:"modified_at" db:"modified_at"`
	CreatedAt  time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at" db:"updated_at"`
}

// DocumentChunk is a slice of a document's text, used for semantic and keyword retrieval.
// Content already carries the file header the assistant cites.
type DocumentChunk struct {
	ID         string    `json:"id" db:"id"`
	DocumentID string    `json:"document_id" db:"document_id"`
	Content    string    `json:"content" db:"content"`
	ChunkIndex int       `json:"chunk_index" db:"chunk_index"`
	Embedding  []float32 `json:"-" db:"-"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// RetrievedChunk is a chunk returned by hybrid retrieval with its document and scores.
type RetrievedChunk struct {
	Chunk         *DocumentChunk `json:"chunk"`
	Document      *Document      `json:"document"`
	Score         float64        `json:"score"`
	KeywordScore  float64        `json:"keyword_score"`
	SemanticScore float64        `json:"semantic_score"`
	Rank          int            `json:"rank"`
}

// Source identifies a file that contributed context to an answer.
type Source struct {
	FileID   string  `json:"file_id"`
	FileName string  `json:"file_name"`
	Sector   string  `json:"sector,omitempty"`
	Path     string  `json:"path,omitempty"`
	Score    float64 `json:"score"`
}
