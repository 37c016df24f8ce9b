package drive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/mindhub/mindlink/internal/fileid"
)

// LocalDrive implements Drive over a directory tree. The root folder ID is "local:".
type LocalDrive struct {
	root     string
	rootName string
	logger   *zap.Logger
}

// NewLocalDrive returns a drive rooted at dir. The directory must exist. rootName is the
// path prefix reported for files, matching the name passed to Walk.
func NewLocalDrive(dir, rootName string, logger *zap.Logger) (*LocalDrive, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to open local drive: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("local drive root %s is not a directory", abs)
	}
	return &LocalDrive{root: abs, rootName: rootName, logger: logger}, nil
}

// Root returns the absolute root directory.
func (l *LocalDrive) Root() string { return l.root }

// RootID returns the folder ID of the root directory.
func (l *LocalDrive) RootID() string { return fileid.LocalID(".") }

// Origin implements Drive.
func (l *LocalDrive) Origin() string { return "local" }

// IDForPath returns the file ID of an absolute path under the root.
func (l *LocalDrive) IDForPath(p string) (string, error) {
	rel, err := filepath.Rel(l.root, p)
	if err != nil {
		return "", err
	}
	return fileid.LocalID(rel), nil
}

func (l *LocalDrive) resolve(id string) (string, error) {
	p, err := fileid.ToPath(l.root, id)
	if err != nil {
		return "", fmt.Errorf("%s: %w", id, err)
	}
	return p, nil
}

func (l *LocalDrive) fileFor(id, p string, info fs.FileInfo) File {
	f := File{
		ID:           id,
		Name:         info.Name(),
		ModifiedTime: info.ModTime(),
		Size:         info.Size(),
	}
	if info.IsDir() {
		f.MimeType = FolderMimeType
		f.Size = 0
	} else {
		f.MimeType = MimeTypeForExt(filepath.Ext(p))
	}
	return f
}

// List implements Drive. Hidden entries are skipped.
func (l *LocalDrive) List(ctx context.Context, folderID string) ([]File, error) {
	dir, err := l.resolve(folderID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", folderID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	out := make([]File, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.Name()[0] == '.' {
			continue
		}
		info, err := e.Info()
		if err != nil {
			l.logger.Warn("skipping unreadable entry", zap.String("name", e.Name()), zap.Error(err))
			continue
		}
		p := filepath.Join(dir, e.Name())
		id, err := l.IDForPath(p)
		if err != nil {
			return nil, err
		}
		out = append(out, l.fileFor(id, p, info))
	}
	return out, nil
}

// Get implements Drive.
func (l *LocalDrive) Get(ctx context.Context, id string) (*File, error) {
	p, err := l.resolve(id)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	f := l.fileFor(id, p, info)
	if !f.IsFolder() {
		f.Path = path.Join(l.rootName, filepath.ToSlash(filepath.Dir(mustRel(l.root, p))))
		f.Sector = path.Base(f.Path)
	}
	return &f, nil
}

// Download implements Drive.
func (l *LocalDrive) Download(ctx context.Context, f *File) ([]byte, string, error) {
	p, err := l.resolve(f.ID)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", fmt.Errorf("%s: %w", f.ID, ErrNotFound)
		}
		return nil, "", fmt.Errorf("failed to read %s: %w", p, err)
	}
	return data, f.Extension(), nil
}

// Update implements Drive. Content is written to a temporary file and renamed into place.
func (l *LocalDrive) Update(ctx context.Context, id, mimeType string, content []byte) error {
	p, err := l.resolve(id)
	if err != nil {
		return err
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".mindlink-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", p, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, info.Mode().Perm()); err != nil {
		return err
	}
	if err := os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("failed to replace %s: %w", p, err)
	}
	l.logger.Info("local file updated", zap.String("file_id", id), zap.String("mime_type", mimeType), zap.Int("bytes", len(content)))
	return nil
}

func mustRel(root, p string) string {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return p
	}
	return rel
}
