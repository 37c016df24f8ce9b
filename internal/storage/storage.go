// Package storage defines the persistence interfaces for documents, accounts, progress and edits.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/mindhub/mindlink/internal/models"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("already exists")
)

// DocumentStore persists indexed documents and their chunks.
type DocumentStore interface {
	UpsertDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)

	GetChunk(ctx context.Context, id string) (*models.DocumentChunk, error)
	GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.DocumentChunk, error)
	DeleteChunksByDocumentID(ctx context.Context, docID string) error
	BatchCreateChunks(ctx context.Context, chunks []*models.DocumentChunk) error

	// ReplaceAll swaps the whole corpus in a single transaction.
	ReplaceAll(ctx context.Context, docs []*models.Document, chunks []*models.DocumentChunk) error

	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)
}

// UserStore persists accounts. E-mail lookups are case-insensitive.
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, u *models.User) error
	// ListUsers returns accounts ordered by id; an empty role lists everyone.
	ListUsers(ctx context.Context, role models.Role) ([]*models.User, error)
}

// SessionStore persists login sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, token string) (*models.Session, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteUserSessions(ctx context.Context, userID int64) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// ProgressStore persists the learning trail, submissions and health scores.
type ProgressStore interface {
	CreateWorld(ctx context.Context, w *models.World) error
	ListWorlds(ctx context.Context, activeOnly bool) ([]*models.World, error)
	CreateStep(ctx context.Context, s *models.Step) error
	GetStep(ctx context.Context, id int64) (*models.Step, error)
	// ListSteps returns steps ordered by world number then step order.
	ListSteps(ctx context.Context, activeOnly bool) ([]*models.Step, error)
	CountStepsInWorld(ctx context.Context, worldID int64) (int, error)

	GetProgress(ctx context.Context, studentID, stepID int64) (*models.StudentProgress, error)
	UpsertProgress(ctx context.Context, p *models.StudentProgress) error
	ListProgressByStudent(ctx context.Context, studentID int64) ([]*models.StudentProgress, error)
	CountCompletedSteps(ctx context.Context, studentID int64) (int, error)
	// CountStudentsInWorld counts distinct students with an open step in the world.
	CountStudentsInWorld(ctx context.Context, worldID int64) (int, error)

	CreateSubmission(ctx context.Context, s *models.Submission) error
	GetSubmission(ctx context.Context, id int64) (*models.Submission, error)
	// ResolveSubmission stores the validation of s and the resulting progress state atomically.
	ResolveSubmission(ctx context.Context, s *models.Submission, p *models.StudentProgress) error
	// ListPendingSubmissions returns unvalidated submissions oldest first; studentID 0 lists all.
	ListPendingSubmissions(ctx context.Context, studentID int64) ([]*models.Submission, error)
	// ListSubmissionsByStudent returns the newest submissions first.
	ListSubmissionsByStudent(ctx context.Context, studentID int64, limit int) ([]*models.Submission, error)
	CountPendingSubmissions(ctx context.Context) (int, error)
	LastSubmissionAt(ctx context.Context, studentID int64) (*time.Time, error)
	// StudentsActiveSince returns the ids of students with a submission at or after since.
	StudentsActiveSince(ctx context.Context, since time.Time) (map[int64]bool, error)

	AddHealthScore(ctx context.Context, h *models.HealthScore) error
	// ListHealthScores returns the newest scores first.
	ListHealthScores(ctx context.Context, studentID int64, limit int) ([]*models.HealthScore, error)
}

// EditLog records applied and failed document edits.
type EditLog interface {
	RecordEdit(ctx context.Context, rec *models.EditRecord) error
	ListEdits(ctx context.Context, offset, limit int) ([]*models.EditRecord, error)
}

// Storage is the full persistence layer.
type Storage interface {
	DocumentStore
	UserStore
	SessionStore
	ProgressStore
	EditLog
	Close() error
}
