// Package indexer ingests drive files into storage, the keyword index and the vector index.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mindhub/mindlink/internal/drive"
	"github.com/mindhub/mindlink/internal/embedding"
	"github.com/mindhub/mindlink/internal/extract"
	"github.com/mindhub/mindlink/internal/keyword"
	"github.com/mindhub/mindlink/internal/models"
	"github.com/mindhub/mindlink/internal/storage"
	"github.com/mindhub/mindlink/internal/vector"
)

// ErrNoDocuments is returned by Rebuild when the drive holds no indexable text.
var ErrNoDocuments = errors.New("no indexable documents found")

var errSkip = errors.New("skipped")

// Header returns the prefix every chunk of a file carries so answers can cite the file.
func Header(fileID, fileName string) string {
	return fmt.Sprintf("ARQUIVO_ID: %s\nNOME_ARQUIVO: %s\n", fileID, fileName)
}

// Stats summarises one Rebuild.
type Stats struct {
	FilesSeen    int           `json:"files_seen"`
	FilesIndexed int           `json:"files_indexed"`
	FilesSkipped int           `json:"files_skipped"`
	FilesFailed  int           `json:"files_failed"`
	Chunks       int           `json:"chunks"`
	Duration     time.Duration `json:"duration"`
}

// Options configures what and how the indexer ingests.
type Options struct {
	RootID          string
	RootName        string
	Extensions      []string
	BatchSize       int
	ChunkSize       int
	ChunkOverlap    int
	Separators      []string
	VectorIndexPath string
}

// Indexer builds the knowledge-base indices from a drive.
type Indexer struct {
	drive        drive.Drive
	storage      storage.DocumentStore
	embedder     embedding.Embedder
	vectorIndex  vector.VectorIndex
	keywordIndex keyword.KeywordIndex
	extractor    *extract.Extractor
	chunker      *Chunker
	opts         Options
	logger       *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// NewIndexer creates an indexer with the given dependencies.
func NewIndexer(
	d drive.Drive,
	store storage.DocumentStore,
	embedder embedding.Embedder,
	vectorIndex vector.VectorIndex,
	keywordIndex keyword.KeywordIndex,
	extractor *extract.Extractor,
	opts Options,
	options ...IndexerOption,
) *Indexer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if extractor == nil {
		extractor = extract.NewExtractor()
	}
	idx := &Indexer{
		drive:        d,
		storage:      store,
		embedder:     embedder,
		vectorIndex:  vectorIndex,
		keywordIndex: keywordIndex,
		extractor:    extractor,
		chunker:      NewChunker(opts.ChunkSize, opts.ChunkOverlap, opts.Separators),
		opts:         opts,
		logger:       zap.NewNop(),
	}
	for _, o := range options {
		o(idx)
	}
	return idx
}

// Rebuild walks the whole drive, re-extracts and re-embeds every supported file and swaps the
// result into storage and both indices. Per-file failures are counted and logged. On any other
// error, or when nothing was indexed, the previous index is left in place.
func (idx *Indexer) Rebuild(ctx context.Context) (*Stats, error) {
	start := time.Now()
	stats := &Stats{}
	var (
		docs   []*models.Document
		chunks []*models.DocumentChunk
	)

	err := drive.Walk(ctx, idx.drive, idx.opts.RootID, idx.opts.RootName, func(f drive.File) error {
		stats.FilesSeen++
		doc, fileChunks, err := idx.ingest(ctx, &f)
		switch {
		case errors.Is(err, errSkip):
			stats.FilesSkipped++
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			stats.FilesFailed++
			idx.logger.Warn("failed to ingest file",
				zap.String("file_id", f.ID),
				zap.String("name", f.Name),
				zap.Error(err),
			)
			return nil
		}
		stats.FilesIndexed++
		docs = append(docs, doc)
		chunks = append(chunks, fileChunks...)
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("walk drive: %w", err)
	}
	if len(chunks) == 0 {
		return stats, ErrNoDocuments
	}

	if err := idx.embedChunks(ctx, chunks); err != nil {
		return stats, err
	}
	if err := idx.swap(ctx, docs, chunks); err != nil {
		return stats, err
	}

	stats.Chunks = len(chunks)
	stats.Duration = time.Since(start)
	idx.logger.Info("knowledge base rebuilt",
		zap.Int("files_seen", stats.FilesSeen),
		zap.Int("files_indexed", stats.FilesIndexed),
		zap.Int("files_skipped", stats.FilesSkipped),
		zap.Int("files_failed", stats.FilesFailed),
		zap.Int("chunks", stats.Chunks),
		zap.Duration("duration", stats.Duration),
	)
	return stats, nil
}

func (idx *Indexer) swap(ctx context.Context, docs []*models.Document, chunks []*models.DocumentChunk) error {
	ids := make([]string, len(chunks))
	vecs := make([][]float32, len(chunks))
	entries := make([]keyword.Entry, len(chunks))
	byID := make(map[string]*models.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}
	for i, c := range chunks {
		ids[i] = c.ID
		vecs[i] = c.Embedding
		entries[i] = entryFor(c, byID[c.DocumentID])
	}

	prev, err := idx.snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to read current documents: %w", err)
	}
	// Storage and keyword entries can be rebuilt from prev, vectors cannot, so the
	// vector index is swapped last.
	if err := idx.storage.ReplaceAll(ctx, docs, chunks); err != nil {
		return fmt.Errorf("failed to store documents: %w", err)
	}
	if err := idx.keywordIndex.Replace(ctx, entries); err != nil {
		return idx.restore(ctx, prev, false, fmt.Errorf("failed to index keywords: %w", err))
	}
	if err := idx.vectorIndex.Replace(ctx, ids, vecs); err != nil {
		return idx.restore(ctx, prev, true, fmt.Errorf("failed to index vectors: %w", err))
	}
	if err := idx.vectorIndex.Save(idx.opts.VectorIndexPath); err != nil {
		idx.logger.Warn("failed to persist vector index", zap.Error(err))
	}
	return nil
}

// corpus is the stored documents and chunks at one point in time.
type corpus struct {
	docs   []*models.Document
	chunks []*models.DocumentChunk
}

const snapshotPage = 500

func (idx *Indexer) snapshot(ctx context.Context) (*corpus, error) {
	c := &corpus{}
	for offset := 0; ; offset += snapshotPage {
		docs, err := idx.storage.ListDocuments(ctx, offset, snapshotPage)
		if err != nil {
			return nil, err
		}
		for _, d := range docs {
			chunks, err := idx.storage.GetChunksByDocumentID(ctx, d.ID)
			if err != nil {
				return nil, err
			}
			c.chunks = append(c.chunks, chunks...)
		}
		c.docs = append(c.docs, docs...)
		if len(docs) < snapshotPage {
			return c, nil
		}
	}
}

// restore puts prev back into storage and, when keywords were already swapped, into the
// keyword index, then returns cause.
func (idx *Indexer) restore(ctx context.Context, prev *corpus, keywords bool, cause error) error {
	if err := idx.storage.ReplaceAll(ctx, prev.docs, prev.chunks); err != nil {
		idx.logger.Error("failed to restore previous documents", zap.Error(err))
		return errors.Join(cause, err)
	}
	if keywords {
		byID := make(map[string]*models.Document, len(prev.docs))
		for _, d := range prev.docs {
			byID[d.ID] = d
		}
		entries := make([]keyword.Entry, len(prev.chunks))
		for i, c := range prev.chunks {
			entries[i] = entryFor(c, byID[c.DocumentID])
		}
		if err := idx.keywordIndex.Replace(ctx, entries); err != nil {
			idx.logger.Error("failed to restore previous keyword index", zap.Error(err))
			return errors.Join(cause, err)
		}
	}
	idx.logger.Warn("rebuild rolled back", zap.Int("documents", len(prev.docs)), zap.Error(cause))
	return cause
}

// RefreshFile re-ingests a single file, replacing its previous chunks. Path and sector are kept
// from the stored document when f does not carry them.
func (idx *Indexer) RefreshFile(ctx context.Context, f *drive.File) error {
	if f.Path == "" {
		if old, err := idx.storage.GetDocument(ctx, f.ID); err == nil {
			f.Path, f.Sector = old.Path, old.Sector
		}
	}
	doc, chunks, err := idx.ingest(ctx, f)
	if errors.Is(err, errSkip) {
		return fmt.Errorf("file %s is not indexable", f.Name)
	}
	if err != nil {
		return err
	}
	if err := idx.embedChunks(ctx, chunks); err != nil {
		return err
	}
	if err := idx.DeleteDocument(ctx, doc.ID); err != nil {
		return err
	}
	if err := idx.storage.UpsertDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to store document: %w", err)
	}
	if err := idx.storage.BatchCreateChunks(ctx, chunks); err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}
	ids := make([]string, len(chunks))
	vecs := make([][]float32, len(chunks))
	entries := make([]keyword.Entry, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
		vecs[i] = c.Embedding
		entries[i] = entryFor(c, doc)
	}
	if err := idx.vectorIndex.Add(ctx, ids, vecs); err != nil {
		return fmt.Errorf("failed to index vectors: %w", err)
	}
	if err := idx.keywordIndex.Index(ctx, entries); err != nil {
		return fmt.Errorf("failed to index keywords: %w", err)
	}
	if err := idx.vectorIndex.Save(idx.opts.VectorIndexPath); err != nil {
		idx.logger.Warn("failed to persist vector index", zap.Error(err))
	}
	idx.logger.Debug("file re-indexed", zap.String("file_id", doc.ID), zap.Int("chunks", len(chunks)))
	return nil
}

// DeleteDocument removes a document's chunks from both indices and the document from storage.
func (idx *Indexer) DeleteDocument(ctx context.Context, id string) error {
	old, err := idx.storage.GetChunksByDocumentID(ctx, id)
	if err != nil {
		return fmt.Errorf("load chunks: %w", err)
	}
	ids := make([]string, len(old))
	for i, c := range old {
		ids[i] = c.ID
	}
	if err := idx.vectorIndex.Remove(ctx, ids); err != nil {
		return fmt.Errorf("remove vectors: %w", err)
	}
	if err := idx.keywordIndex.Delete(ctx, ids); err != nil {
		return fmt.Errorf("remove keywords: %w", err)
	}
	if err := idx.storage.DeleteChunksByDocumentID(ctx, id); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if err := idx.storage.DeleteDocument(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// ingest downloads, extracts and chunks one file. It returns errSkip for files that are not
// indexable.
func (idx *Indexer) ingest(ctx context.Context, f *drive.File) (*models.Document, []*models.DocumentChunk, error) {
	ext := f.Extension()
	if ext == ".xls" {
		idx.logger.Warn("skipping legacy .xls workbook", zap.String("file_id", f.ID), zap.String("name", f.Name))
		return nil, nil, errSkip
	}
	if !idx.extensionAllowed(ext) || !idx.extractor.Supported(ext) {
		idx.logger.Debug("skipping unsupported file", zap.String("name", f.Name), zap.String("ext", ext))
		return nil, nil, errSkip
	}

	content, effectiveExt, err := idx.drive.Download(ctx, f)
	if err != nil {
		return nil, nil, fmt.Errorf("download: %w", err)
	}
	text, err := idx.extractor.ExtractBytes(content, effectiveExt)
	if err != nil {
		return nil, nil, fmt.Errorf("extract: %w", err)
	}
	text = Preprocess(text)
	if text == "" {
		idx.logger.Debug("skipping file without text", zap.String("name", f.Name))
		return nil, nil, errSkip
	}

	doc := &models.Document{
		ID:         f.ID,
		Name:       f.Name,
		MimeType:   f.MimeType,
		Path:       f.Path,
		Sector:     f.Sector,
		Origin:     idx.drive.Origin(),
		Content:    text,
		ModifiedAt: f.ModifiedTime,
		Metadata: map[string]interface{}{
			"extension": effectiveExt,
			"size":      f.Size,
		},
	}
	chunks := idx.chunker.Chunk(doc.ID, Header(f.ID, f.Name), text)
	return doc, chunks, nil
}

func (idx *Indexer) embedChunks(ctx context.Context, chunks []*models.DocumentChunk) error {
	for start := 0; start < len(chunks); start += idx.opts.BatchSize {
		end := start + idx.opts.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, end-start)
		for i, c := range chunks[start:end] {
			texts[i] = c.Content
		}
		embeddings, err := idx.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to generate embeddings: %w", err)
		}
		if len(embeddings) != len(texts) {
			return fmt.Errorf("embedder returned %d vectors for %d chunks", len(embeddings), len(texts))
		}
		for i, e := range embeddings {
			chunks[start+i].Embedding = e
		}
	}
	return nil
}

func (idx *Indexer) extensionAllowed(ext string) bool {
	if len(idx.opts.Extensions) == 0 {
		return true
	}
	for _, a := range idx.opts.Extensions {
		if strings.EqualFold(ext, a) {
			return true
		}
	}
	return false
}

func entryFor(c *models.DocumentChunk, doc *models.Document) keyword.Entry {
	e := keyword.Entry{ID: c.ID, Content: c.Content}
	if doc != nil {
		e.FileName = doc.Name
		e.Sector = doc.Sector
	}
	return e
}
