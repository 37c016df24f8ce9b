// Package editor runs the document edit pipeline: resolve the target file, parse the command,
// mutate a downloaded copy, upload it, log the edit and re-index the file.
package editor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mindhub/mindlink/internal/command"
	"github.com/mindhub/mindlink/internal/drive"
	"github.com/mindhub/mindlink/internal/fileid"
	"github.com/mindhub/mindlink/internal/models"
	"github.com/mindhub/mindlink/internal/mutate"
	"github.com/mindhub/mindlink/internal/storage"
)

var (
	// ErrDisabled is returned when document edits are turned off.
	ErrDisabled = errors.New("document edits are disabled")
	// ErrForbidden is returned when the requesting role may not edit documents.
	ErrForbidden = errors.New("role may not edit documents")
	// ErrFileNotFound is returned when the target file cannot be resolved.
	ErrFileNotFound = errors.New("file not found")
	// ErrAmbiguousFile is returned when a file name matches more than one document.
	ErrAmbiguousFile = errors.New("file name matches several documents")
)

// Refresher re-indexes a single file after it changed.
type Refresher interface {
	RefreshFile(ctx context.Context, f *drive.File) error
}

// Request asks for an edit. Instruction is either a bare directive or a whole suggestion block;
// FileID and FileName override what the block names.
type Request struct {
	FileID      string
	FileName    string
	Instruction string
	User        string
	Role        models.Role
}

// Outcome reports an applied edit.
type Outcome struct {
	FileID    string           `json:"file_id"`
	FileName  string           `json:"file_name"`
	Command   *command.Command `json:"command"`
	Result    *mutate.Result   `json:"result"`
	Reindexed bool             `json:"reindexed"`
}

// Options configures who may edit.
type Options struct {
	Enabled      bool
	AllowedRoles []models.Role
}

// Editor applies edit commands to drive files.
type Editor struct {
	drive     drive.Drive
	docs      storage.DocumentStore
	log       storage.EditLog
	refresher Refresher
	opts      Options
	logger    *zap.Logger

	mu    sync.Mutex
	locks map[string]*fileLock
}

// fileLock serialises edits of one file. refs counts holders and waiters; the entry is
// dropped when it reaches zero.
type fileLock struct {
	sync.Mutex
	refs int
}

// Option configures an Editor.
type Option func(*Editor)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Editor) { e.logger = l }
}

// WithRefresher sets the component that re-indexes edited files.
func WithRefresher(r Refresher) Option {
	return func(e *Editor) { e.refresher = r }
}

// New creates an Editor. docs is used to resolve files by name and log records every attempt.
func New(d drive.Drive, docs storage.DocumentStore, log storage.EditLog, opts Options, options ...Option) *Editor {
	e := &Editor{
		drive:  d,
		docs:   docs,
		log:    log,
		opts:   opts,
		logger: zap.NewNop(),
		locks:  make(map[string]*fileLock),
	}
	for _, o := range options {
		o(e)
	}
	return e
}

// Allowed reports whether role may apply edits.
func (e *Editor) Allowed(role models.Role) bool {
	if !e.opts.Enabled {
		return false
	}
	for _, r := range e.opts.AllowedRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Apply runs the edit described by req. A command that matches nothing returns mutate.ErrNoMatch
// and the remote file is left untouched.
func (e *Editor) Apply(ctx context.Context, req Request) (*Outcome, error) {
	if !e.opts.Enabled {
		return nil, ErrDisabled
	}
	if !e.Allowed(req.Role) {
		return nil, fmt.Errorf("%w: %s", ErrForbidden, req.Role)
	}

	cmd, fileID, fileName, err := parseInstruction(req)
	if err != nil {
		return nil, err
	}
	f, err := e.resolve(ctx, fileID, fileName)
	if err != nil {
		return nil, err
	}

	unlock := e.lock(f.ID)
	defer unlock()

	rec := &models.EditRecord{
		FileID:    f.ID,
		FileName:  f.Name,
		UserEmail: req.User,
		Action:    string(cmd.Action),
		Command:   cmd.String(),
	}
	res, err := e.mutate(ctx, f, cmd)
	if res != nil {
		rec.Changes, rec.Fallback = res.Changes, res.Fallback
	}
	switch {
	case errors.Is(err, mutate.ErrNoMatch):
		rec.Status, rec.Error = models.EditNoMatch, err.Error()
	case err != nil:
		rec.Status, rec.Error = models.EditFailed, err.Error()
	default:
		rec.Status = models.EditApplied
	}
	e.record(ctx, rec)
	if err != nil {
		e.logger.Warn("edit not applied",
			zap.String("file_id", f.ID), zap.String("action", string(cmd.Action)), zap.Error(err))
		return nil, err
	}
	e.logger.Info("edit applied",
		zap.String("file_id", f.ID),
		zap.String("file_name", f.Name),
		zap.String("action", string(cmd.Action)),
		zap.Int("changes", res.Changes),
		zap.Bool("fallback", res.Fallback),
		zap.String("user", req.User))

	out := &Outcome{FileID: f.ID, FileName: f.Name, Command: cmd, Result: res}
	if e.refresher != nil {
		if err := e.refresher.RefreshFile(ctx, f); err != nil {
			e.logger.Warn("re-index after edit failed", zap.String("file_id", f.ID), zap.Error(err))
		} else {
			out.Reindexed = true
		}
	}
	return out, nil
}

func (e *Editor) mutate(ctx context.Context, f *drive.File, cmd *command.Command) (*mutate.Result, error) {
	content, ext, err := e.drive.Download(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", f.Name, err)
	}
	if !mutate.Supported(ext) {
		return nil, fmt.Errorf("%s: %w", f.Name, mutate.ErrUnsupported)
	}
	out, res, err := mutate.Apply(content, ext, cmd)
	if err != nil {
		return res, err
	}
	if err := e.drive.Update(ctx, f.ID, drive.MimeTypeForExt(ext), out); err != nil {
		return res, fmt.Errorf("upload %s: %w", f.Name, err)
	}
	return res, nil
}

// parseInstruction reads a suggestion block, or failing that a bare directive.
func parseInstruction(req Request) (*command.Command, string, string, error) {
	fileID, fileName := req.FileID, req.FileName
	s, err := command.ParseSuggestion(req.Instruction)
	switch {
	case err == nil:
		if fileID == "" {
			fileID = s.FileID
		}
		if fileName == "" {
			fileName = s.FileName
		}
		return s.Command, fileID, fileName, nil
	case !errors.Is(err, command.ErrNoSuggestion):
		return nil, "", "", err
	}
	cmd, err := command.Extract(req.Instruction)
	if err != nil {
		return nil, "", "", err
	}
	return cmd, fileID, fileName, nil
}

// resolve finds the file by id, falling back to an exact (case-insensitive) name match among
// indexed documents.
func (e *Editor) resolve(ctx context.Context, id, name string) (*drive.File, error) {
	if id != "" {
		f, err := e.drive.Get(ctx, id)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, drive.ErrNotFound) && !errors.Is(err, fileid.ErrInvalidID) {
			return nil, fmt.Errorf("get %s: %w", id, err)
		}
		if name == "" {
			return nil, fmt.Errorf("%w: %v", ErrFileNotFound, err)
		}
	}
	if name == "" {
		return nil, fmt.Errorf("%w: no file id or name given", ErrFileNotFound)
	}
	const page = 500
	var match *models.Document
	for offset := 0; ; offset += page {
		docs, err := e.docs.ListDocuments(ctx, offset, page)
		if err != nil {
			return nil, fmt.Errorf("list documents: %w", err)
		}
		for _, d := range docs {
			if !strings.EqualFold(d.Name, name) {
				continue
			}
			if match != nil {
				return nil, fmt.Errorf("%w: %q", ErrAmbiguousFile, name)
			}
			match = d
		}
		if len(docs) < page {
			break
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %q", ErrFileNotFound, name)
	}
	f, err := e.drive.Get(ctx, match.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFileNotFound, err)
	}
	if f.Path == "" {
		f.Path, f.Sector = match.Path, match.Sector
	}
	return f, nil
}

func (e *Editor) lock(id string) func() {
	e.mu.Lock()
	l, ok := e.locks[id]
	if !ok {
		l = &fileLock{}
		e.locks[id] = l
	}
	l.refs++
	e.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		e.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, id)
		}
		e.mu.Unlock()
	}
}

func (e *Editor) record(ctx context.Context, rec *models.EditRecord) {
	if err := e.log.RecordEdit(ctx, rec); err != nil {
		e.logger.Error("failed to record edit", zap.String("file_id", rec.FileID), zap.Error(err))
	}
}
