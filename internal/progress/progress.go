// Package progress runs the learning trail: student submissions, monitor validation, health
// scores and the inactivity check.
package progress

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mindhub/mindlink/internal/models"
	"github.com/mindhub/mindlink/internal/storage"
)

var (
	// ErrNotStudent is returned when the addressed user is not a student.
	ErrNotStudent = errors.New("user is not a student")
	// ErrInvalidScore is returned for health scores outside 1..5.
	ErrInvalidScore = errors.New("health score must be between 1 and 5")
	// ErrAlreadyValidated is returned when a submission was approved or rejected before.
	ErrAlreadyValidated = errors.New("submission already validated")
	// ErrFeedbackRequired is returned when rejecting without feedback.
	ErrFeedbackRequired = errors.New("feedback is required to reject a submission")
	// ErrNoPhone is returned when alerting a student without a phone number.
	ErrNoPhone = errors.New("student has no phone number")
	// ErrStepInactive is returned when submitting to a disabled step.
	ErrStepInactive = errors.New("step is not active")
	// ErrStepCompleted is returned when submitting to a step that is already completed.
	ErrStepCompleted = errors.New("step already completed")
	// ErrAlreadyPending is returned when the step already waits for validation.
	ErrAlreadyPending = errors.New("step already has a submission waiting for validation")
	// ErrEmptySubmission is returned when a submission carries no text, file or form answers.
	ErrEmptySubmission = errors.New("submission is empty")
	// ErrInvalidWorld is returned for a world without number or name.
	ErrInvalidWorld = errors.New("world needs a positive number and a name")
	// ErrInvalidStep is returned for a step without world or title.
	ErrInvalidStep = errors.New("step needs a world and a title")
)

// Default values of the inactivity check.
const (
	DefaultInactivityDays  = 7
	DefaultInactivityScore = 1
)

const (
	historyLimit = 10
	recentLimit  = 5
)

// Options configures a Service.
type Options struct {
	// InactivityDays is the window used by Stats to count inactive students.
	InactivityDays int
}

// Service implements the monitor and student operations of the learning trail.
type Service struct {
	store   storage.ProgressStore
	users   storage.UserStore
	alerter Alerter
	opts    Options
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithAlerter sets how student alerts are delivered.
func WithAlerter(a Alerter) Option {
	return func(s *Service) { s.alerter = a }
}

// New creates a Service.
func New(store storage.ProgressStore, users storage.UserStore, opts Options, options ...Option) *Service {
	if opts.InactivityDays <= 0 {
		opts.InactivityDays = DefaultInactivityDays
	}
	s := &Service{
		store:  store,
		users:  users,
		opts:   opts,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, o := range options {
		o(s)
	}
	if s.alerter == nil {
		s.alerter = NewLogAlerter(s.logger)
	}
	return s
}

// student loads a user and checks it is a student.
func (s *Service) student(ctx context.Context, id int64) (*models.User, error) {
	u, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Role != models.RoleStudent {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotStudent)
	}
	return u, nil
}

// activeStudents lists students whose account is active.
func (s *Service) activeStudents(ctx context.Context) ([]*models.User, error) {
	all, err := s.users.ListUsers(ctx, models.RoleStudent)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	out := all[:0]
	for _, u := range all {
		if u.Active {
			out = append(out, u)
		}
	}
	return out, nil
}

// CurrentScore returns the latest health score of a student, or DefaultHealthScore when none.
func (s *Service) CurrentScore(ctx context.Context, studentID int64) (int, error) {
	scores, err := s.store.ListHealthScores(ctx, studentID, 1)
	if err != nil {
		return 0, fmt.Errorf("list health scores: %w", err)
	}
	if len(scores) == 0 {
		return models.DefaultHealthScore, nil
	}
	return scores[0].Score, nil
}

// SetScore records a manual health score on behalf of monitor.
func (s *Service) SetScore(ctx context.Context, monitor *models.User, studentID int64, score int, note string) (*models.HealthScore, error) {
	if !models.ValidHealthScore(score) {
		return nil, ErrInvalidScore
	}
	if _, err := s.student(ctx, studentID); err != nil {
		return nil, err
	}
	h := &models.HealthScore{
		StudentID: studentID,
		Score:     score,
		Automatic: false,
		Note:      strings.TrimSpace(fmt.Sprintf("Definida por %s. %s", monitor.Email, strings.TrimSpace(note))),
		CreatedAt: s.now(),
	}
	if err := s.store.AddHealthScore(ctx, h); err != nil {
		return nil, fmt.Errorf("add health score: %w", err)
	}
	s.logger.Info("health score set",
		zap.Int64("student_id", studentID), zap.Int("score", score), zap.String("by", monitor.Email))
	return h, nil
}

// CreateWorld adds a world to the trail.
func (s *Service) CreateWorld(ctx context.Context, w *models.World) error {
	w.Name = strings.TrimSpace(w.Name)
	if w.Number <= 0 || w.Name == "" {
		return ErrInvalidWorld
	}
	return s.store.CreateWorld(ctx, w)
}

// CreateStep adds a step to a world. An empty validation type means a text delivery.
func (s *Service) CreateStep(ctx context.Context, st *models.Step) error {
	st.Title = strings.TrimSpace(st.Title)
	if st.WorldID == 0 || st.Title == "" {
		return ErrInvalidStep
	}
	if st.ValidationType == "" {
		st.ValidationType = "text"
	}
	return s.store.CreateStep(ctx, st)
}

// trail is a snapshot of the active steps and every world, loaded once per request.
type trail struct {
	steps  []*models.Step
	worlds map[int64]*models.World
	order  []*models.World
}

func (s *Service) loadTrail(ctx context.Context) (*trail, error) {
	steps, err := s.store.ListSteps(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	worlds, err := s.store.ListWorlds(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("list worlds: %w", err)
	}
	t := &trail{steps: steps, worlds: make(map[int64]*models.World, len(worlds)), order: worlds}
	for _, w := range worlds {
		t.worlds[w.ID] = w
	}
	return t, nil
}

func (t *trail) step(id int64) *models.Step {
	for _, st := range t.steps {
		if st.ID == id {
			return st
		}
	}
	return nil
}

// current returns the first active step the student has not completed, and its world.
func (t *trail) current(progress []*models.StudentProgress) (*models.Step, *models.World) {
	done := make(map[int64]bool, len(progress))
	for _, p := range progress {
		if p.Status == models.StatusCompleted {
			done[p.StepID] = true
		}
	}
	for _, st := range t.steps {
		if !done[st.ID] {
			return st, t.worlds[st.WorldID]
		}
	}
	return nil, nil
}
