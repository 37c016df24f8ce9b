// Package knowledge owns the lifecycle of the knowledge-base index: the lazy first build,
// coalesced forced refreshes, single-file refreshes and the local change feed.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/mindhub/mindlink/internal/drive"
	"github.com/mindhub/mindlink/internal/indexer"
	"github.com/mindhub/mindlink/internal/keyword"
	"github.com/mindhub/mindlink/internal/storage"
	"github.com/mindhub/mindlink/internal/vector"
	"github.com/mindhub/mindlink/internal/watcher"
)

// ErrClosed is returned by operations on a closed manager.
var ErrClosed = errors.New("knowledge manager closed")

// Builder rebuilds the whole index or refreshes a single file.
type Builder interface {
	Rebuild(ctx context.Context) (*indexer.Stats, error)
	RefreshFile(ctx context.Context, f *drive.File) error
	DeleteDocument(ctx context.Context, id string) error
}

// Status describes the index as served right now.
type Status struct {
	Documents   int64          `json:"documents"`
	Chunks      int64          `json:"chunks"`
	Vectors     int            `json:"vectors"`
	KeywordDocs uint64         `json:"keyword_docs"`
	Refreshing  bool           `json:"refreshing"`
	LastRefresh *time.Time     `json:"last_refresh,omitempty"`
	LastStats   *indexer.Stats `json:"last_stats,omitempty"`
	LastError   string         `json:"last_error,omitempty"`
}

// Manager serialises every write to the index and coalesces concurrent refresh requests.
type Manager struct {
	builder  Builder
	store    storage.DocumentStore
	vectors  vector.VectorIndex
	keywords keyword.KeywordIndex
	logger   *zap.Logger
	hooks    []func()

	ctx    context.Context
	cancel context.CancelFunc

	group      singleflight.Group
	refreshing atomic.Bool
	indexMu    sync.Mutex

	mu          sync.RWMutex
	lastRefresh time.Time
	lastStats   *indexer.Stats
	lastErr     error
	watcher     *watcher.Watcher
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// OnRefresh registers fn to run after every successful full rebuild.
func OnRefresh(fn func()) Option {
	return func(m *Manager) { m.hooks = append(m.hooks, fn) }
}

// New creates a Manager. Close releases the background context and stops the watcher.
func New(b Builder, store storage.DocumentStore, vectors vector.VectorIndex, keywords keyword.KeywordIndex, options ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		builder:  b,
		store:    store,
		vectors:  vectors,
		keywords: keywords,
		logger:   zap.NewNop(),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, o := range options {
		o(m)
	}
	return m
}

// Ensure builds the index when nothing is being served yet: no chunks in storage, or a vector
// index that came up empty.
func (m *Manager) Ensure(ctx context.Context) error {
	chunks, err := m.store.CountChunks(ctx)
	if err != nil {
		return fmt.Errorf("count chunks: %w", err)
	}
	if chunks > 0 && m.vectors.Size() > 0 {
		return nil
	}
	m.logger.Info("knowledge base empty, building", zap.Int64("chunks", chunks), zap.Int("vectors", m.vectors.Size()))
	_, err = m.ForceRefresh(ctx)
	return err
}

// ForceRefresh rebuilds the whole index. Concurrent callers share a single rebuild and its result.
// The rebuild keeps running when ctx is cancelled; only the wait is abandoned. On failure the
// previous index keeps serving.
func (m *Manager) ForceRefresh(ctx context.Context) (*indexer.Stats, error) {
	if m.ctx.Err() != nil {
		return nil, ErrClosed
	}
	ch := m.group.DoChan("refresh", func() (interface{}, error) {
		return m.rebuild()
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*indexer.Stats), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) rebuild() (*indexer.Stats, error) {
	m.refreshing.Store(true)
	defer m.refreshing.Store(false)
	m.indexMu.Lock()
	defer m.indexMu.Unlock()

	m.logger.Info("knowledge base refresh started")
	stats, err := m.builder.Rebuild(m.ctx)

	m.mu.Lock()
	m.lastErr = err
	if err == nil {
		m.lastRefresh = time.Now()
		m.lastStats = stats
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("knowledge base refresh failed", zap.Error(err))
		return nil, fmt.Errorf("refresh knowledge base: %w", err)
	}
	m.logger.Info("knowledge base refreshed",
		zap.Int("files_indexed", stats.FilesIndexed),
		zap.Int("files_failed", stats.FilesFailed),
		zap.Int("chunks", stats.Chunks),
		zap.Duration("duration", stats.Duration))
	for _, fn := range m.hooks {
		fn()
	}
	return stats, nil
}

// Refreshing reports whether a full rebuild is running.
func (m *Manager) Refreshing() bool {
	return m.refreshing.Load()
}

// RefreshFile re-indexes one file. It waits for a running rebuild to finish first.
func (m *Manager) RefreshFile(ctx context.Context, f *drive.File) error {
	m.indexMu.Lock()
	defer m.indexMu.Unlock()
	return m.builder.RefreshFile(ctx, f)
}

// DeleteDocument drops a file from the index.
func (m *Manager) DeleteDocument(ctx context.Context, id string) error {
	m.indexMu.Lock()
	defer m.indexMu.Unlock()
	return m.builder.DeleteDocument(ctx, id)
}

// Status reports what is being served.
func (m *Manager) Status(ctx context.Context) (*Status, error) {
	docs, err := m.store.CountDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	chunks, err := m.store.CountChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("count chunks: %w", err)
	}
	kw, err := m.keywords.DocCount()
	if err != nil {
		return nil, fmt.Errorf("count keyword entries: %w", err)
	}
	s := &Status{
		Documents:   docs,
		Chunks:      chunks,
		Vectors:     m.vectors.Size(),
		KeywordDocs: kw,
		Refreshing:  m.Refreshing(),
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.lastRefresh.IsZero() {
		t := m.lastRefresh
		s.LastRefresh = &t
	}
	s.LastStats = m.lastStats
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	return s, nil
}

// Close stops the watcher and cancels a running rebuild.
func (m *Manager) Close() {
	m.mu.Lock()
	w := m.watcher
	m.watcher = nil
	m.mu.Unlock()
	if w != nil {
		w.Stop()
	}
	m.cancel()
}
