package knowledge

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mindhub/mindlink/internal/drive"
	"github.com/mindhub/mindlink/internal/storage"
	"github.com/mindhub/mindlink/internal/watcher"
)

// Watch follows the tree of a local drive and re-indexes files as they change. Only files with
// one of extensions are followed. debounce 0 uses the watcher default.
func (m *Manager) Watch(d *drive.LocalDrive, extensions []string, debounce time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watcher != nil {
		return nil
	}
	if m.ctx.Err() != nil {
		return ErrClosed
	}
	opts := []watcher.WatcherOption{watcher.WithLogger(m.logger)}
	if debounce > 0 {
		opts = append(opts, watcher.WithDebounce(debounce))
	}
	w := watcher.NewWatcher(d.Root(), extensions,
		func(path string) { m.fileChanged(d, path) },
		func(path string) { m.fileRemoved(d, path) },
		opts...)
	if err := w.Start(m.ctx); err != nil {
		return err
	}
	m.watcher = w
	return nil
}

func (m *Manager) fileChanged(d *drive.LocalDrive, path string) {
	id, err := d.IDForPath(path)
	if err != nil {
		m.logger.Warn("changed file outside drive", zap.String("path", path), zap.Error(err))
		return
	}
	f, err := d.Get(m.ctx, id)
	if err != nil {
		m.logger.Warn("changed file unreadable", zap.String("file_id", id), zap.Error(err))
		return
	}
	if err := m.RefreshFile(m.ctx, f); err != nil {
		m.logger.Warn("re-index of changed file failed", zap.String("file_id", id), zap.Error(err))
		return
	}
	m.logger.Info("changed file re-indexed", zap.String("file_id", id))
}

func (m *Manager) fileRemoved(d *drive.LocalDrive, path string) {
	id, err := d.IDForPath(path)
	if err != nil {
		return
	}
	if err := m.DeleteDocument(m.ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		m.logger.Warn("removing deleted file from index failed", zap.String("file_id", id), zap.Error(err))
		return
	}
	m.logger.Info("deleted file removed from index", zap.String("file_id", id))
}
