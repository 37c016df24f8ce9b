package indexer

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/mindhub/mindlink/internal/models"
)

// DefaultSeparators are tried in order: paragraphs, lines, words, characters.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Chunker splits text recursively on a list of separators so that every chunk fits in
// chunkSize characters, carrying chunkOverlap characters of context between neighbours.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// NewChunker creates a chunker. Sizes are in characters (runes). Nil separators use DefaultSeparators.
func NewChunker(chunkSize, chunkOverlap int, separators []string) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 1500
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}
	if len(separators) == 0 {
		separators = DefaultSeparators
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   separators,
	}
}

// Chunk splits text into DocumentChunks. header is prepended to every chunk and does not count
// against the chunk size.
func (c *Chunker) Chunk(docID, header, text string) []*models.DocumentChunk {
	pieces := c.Split(text)
	if len(pieces) == 0 {
		return nil
	}
	chunks := make([]*models.DocumentChunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = &models.DocumentChunk{
			ID:         docID + "_" + uuid.NewString()[:8],
			DocumentID: docID,
			Content:    header + p,
			ChunkIndex: i,
		}
	}
	return chunks
}

// Split returns the text pieces without building chunks.
func (c *Chunker) Split(text string) []string {
	return c.split(text, c.separators)
}

func (c *Chunker) split(text string, separators []string) []string {
	sep := separators[len(separators)-1]
	var rest []string
	for i, s := range separators {
		if s == "" || strings.Contains(text, s) {
			sep = s
			rest = separators[i+1:]
			break
		}
	}

	var (
		out  []string
		good []string
	)
	for _, s := range splitOn(text, sep) {
		if runeLen(s) < c.chunkSize {
			good = append(good, s)
			continue
		}
		if len(good) > 0 {
			out = append(out, c.merge(good, sep)...)
			good = nil
		}
		if len(rest) == 0 {
			out = append(out, s)
		} else {
			out = append(out, c.split(s, rest)...)
		}
	}
	if len(good) > 0 {
		out = append(out, c.merge(good, sep)...)
	}
	return out
}

func splitOn(text, sep string) []string {
	var parts []string
	if sep == "" {
		parts = make([]string, 0, len(text))
		for _, r := range text {
			parts = append(parts, string(r))
		}
	} else {
		parts = strings.Split(text, sep)
	}
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// merge packs small splits into chunks no longer than chunkSize, keeping up to chunkOverlap
// characters of trailing splits at the start of the next chunk.
func (c *Chunker) merge(splits []string, sep string) []string {
	sepLen := runeLen(sep)
	var (
		docs    []string
		current []string
		total   int
	)
	joinedLen := func() int {
		if len(current) > 0 {
			return sepLen
		}
		return 0
	}
	for _, s := range splits {
		l := runeLen(s)
		if total+l+joinedLen() > c.chunkSize && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, sep)); doc != "" {
				docs = append(docs, doc)
			}
			for total > c.chunkOverlap || (total+l+joinedLen() > c.chunkSize && total > 0) {
				total -= runeLen(current[0])
				if len(current) > 1 {
					total -= sepLen
				}
				current = current[1:]
			}
		}
		total += l + joinedLen()
		current = append(current, s)
	}
	if doc := strings.TrimSpace(strings.Join(current, sep)); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
