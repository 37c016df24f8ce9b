package keyword

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/mindhub/mindlink/pkg/utils"
)

const (
	fileNameBoost = 2.0
	batchSize     = 500
)

var nameSeparators = strings.NewReplacer(".", " ", "_", " ", "-", " ")

// bleveDoc is what gets stored per chunk. Text fields are accent-folded so "ferias" finds "férias".
type bleveDoc struct {
	Content  string `json:"content"`
	FileName string `json:"file_name"`
	Sector   string `json:"sector"`
}

// BleveIndex implements KeywordIndex using Bleve. An empty path keeps the index in memory.
type BleveIndex struct {
	path  string
	mu    sync.RWMutex
	index bleve.Index
}

func newMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	// Standard analyzer: lowercase + tokenize, no stemming.
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	text.Store = false
	docMapping.AddFieldMappingsAt("content", text)
	docMapping.AddFieldMappingsAt("file_name", text)
	docMapping.AddFieldMappingsAt("sector", text)
	im.DefaultMapping = docMapping
	return im
}

func openOrCreate(path string) (bleve.Index, error) {
	if path == "" {
		return bleve.NewMemOnly(newMapping())
	}
	if _, err := os.Stat(path); err == nil {
		index, err := bleve.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", err)
		}
		return index, nil
	}
	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return index, nil
}

// NewBleveIndex creates or opens a Bleve index at path.
func NewBleveIndex(path string) (*BleveIndex, error) {
	index, err := openOrCreate(path)
	if err != nil {
		return nil, err
	}
	return &BleveIndex{path: path, index: index}, nil
}

func toDoc(e Entry) bleveDoc {
	return bleveDoc{
		Content:  utils.FoldLower(e.Content),
		FileName: nameSeparators.Replace(utils.FoldLower(e.FileName)),
		Sector:   utils.FoldLower(e.Sector),
	}
}

func indexInto(ctx context.Context, index bleve.Index, entries []Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	batch := index.NewBatch()
	for _, e := range entries {
		if err := batch.Index(e.ID, toDoc(e)); err != nil {
			return fmt.Errorf("index chunk %s: %w", e.ID, err)
		}
		if batch.Size() >= batchSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := index.Batch(batch); err != nil {
				return fmt.Errorf("Bleve batch failed: %w", err)
			}
			batch.Reset()
		}
	}
	if batch.Size() > 0 {
		if err := index.Batch(batch); err != nil {
			return fmt.Errorf("Bleve batch failed: %w", err)
		}
	}
	return nil
}

// Index adds or updates entries.
func (b *BleveIndex) Index(ctx context.Context, entries []Entry) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return indexInto(ctx, b.index, entries)
}

// Replace builds a fresh index from entries and swaps it in. On error the current index is kept.
func (b *BleveIndex) Replace(ctx context.Context, entries []Entry) error {
	next, nextPath, err := b.buildNext(ctx, entries)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.path == "" {
		old := b.index
		b.index = next
		return old.Close()
	}
	// On-disk: close both, move the new directory into place and reopen.
	if err := next.Close(); err != nil {
		os.RemoveAll(nextPath)
		return fmt.Errorf("close new Bleve index: %w", err)
	}
	if err := b.index.Close(); err != nil {
		return fmt.Errorf("close Bleve index: %w", err)
	}
	if err := os.RemoveAll(b.path); err != nil {
		return fmt.Errorf("remove old Bleve index: %w", err)
	}
	if err := os.Rename(nextPath, b.path); err != nil {
		return fmt.Errorf("move new Bleve index: %w", err)
	}
	index, err := bleve.Open(b.path)
	if err != nil {
		return fmt.Errorf("failed to open Bleve index: %w", err)
	}
	b.index = index
	return nil
}

func (b *BleveIndex) buildNext(ctx context.Context, entries []Entry) (bleve.Index, string, error) {
	var (
		next     bleve.Index
		nextPath string
		err      error
	)
	if b.path == "" {
		next, err = bleve.NewMemOnly(newMapping())
	} else {
		nextPath = b.path + ".next"
		if err := os.RemoveAll(nextPath); err != nil {
			return nil, "", fmt.Errorf("clear staging index: %w", err)
		}
		next, err = bleve.New(nextPath, newMapping())
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to create Bleve index: %w", err)
	}
	if err := indexInto(ctx, next, entries); err != nil {
		next.Close()
		if nextPath != "" {
			os.RemoveAll(nextPath)
		}
		return nil, "", err
	}
	return next, nextPath, nil
}

// Search matches query against chunk content, file name and sector. File name matches are boosted.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int) ([]*KeywordResult, error) {
	folded := strings.TrimSpace(utils.FoldLower(query))
	if folded == "" || limit <= 0 {
		return nil, nil
	}

	content := bleve.NewMatchQuery(folded)
	content.SetField("content")
	fileName := bleve.NewMatchQuery(folded)
	fileName.SetField("file_name")
	fileName.SetBoost(fileNameBoost)
	sector := bleve.NewMatchQuery(folded)
	sector.SetField("sector")
	var q blevequery.Query = bleve.NewDisjunctionQuery(content, fileName, sector)

	req := bleve.NewSearchRequest(q)
	req.Size = limit

	b.mu.RLock()
	defer b.mu.RUnlock()
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*KeywordResult, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &KeywordResult{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// Delete removes entries by chunk ID.
func (b *BleveIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("Bleve delete failed: %w", err)
	}
	return nil
}

// DocCount returns the number of indexed chunks.
func (b *BleveIndex) DocCount() (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.index.Close()
}
