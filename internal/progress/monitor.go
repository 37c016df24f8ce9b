package progress

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mindhub/mindlink/internal/models"
	"github.com/mindhub/mindlink/internal/storage"
)

// WorldRef names a world in summaries.
type WorldRef struct {
	Number int    `json:"number"`
	Name   string `json:"name"`
	Icon   string `json:"icon,omitempty"`
}

// StepRef names a step in summaries.
type StepRef struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	ValidationType string `json:"validation_type,omitempty"`
}

func worldRef(w *models.World) *WorldRef {
	if w == nil {
		return nil
	}
	return &WorldRef{Number: w.Number, Name: w.Name, Icon: w.Icon}
}

func stepRef(st *models.Step) *StepRef {
	if st == nil {
		return nil
	}
	return &StepRef{ID: st.ID, Title: st.Title, ValidationType: st.ValidationType}
}

// StudentSummary is one node of the monitor overview.
type StudentSummary struct {
	ID                 int64      `json:"id"`
	Name               string     `json:"name"`
	Email              string     `json:"email"`
	Score              int        `json:"score"`
	Color              string     `json:"color"`
	World              *WorldRef  `json:"world"`
	Step               *StepRef   `json:"step"`
	LastActivity       *time.Time `json:"last_activity"`
	PendingSubmissions int        `json:"pending_submissions"`
}

// StudentList is the monitor overview.
type StudentList struct {
	Students []StudentSummary           `json:"students"`
	Total    int                        `json:"total"`
	Legend   map[int]models.HealthLevel `json:"legend"`
}

// ListStudents summarises every active student.
func (s *Service) ListStudents(ctx context.Context) (*StudentList, error) {
	students, err := s.activeStudents(ctx)
	if err != nil {
		return nil, err
	}
	t, err := s.loadTrail(ctx)
	if err != nil {
		return nil, err
	}
	list := &StudentList{Students: make([]StudentSummary, 0, len(students)), Legend: models.HealthLegend()}
	for _, u := range students {
		score, err := s.CurrentScore(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		prog, err := s.store.ListProgressByStudent(ctx, u.ID)
		if err != nil {
			return nil, fmt.Errorf("list progress: %w", err)
		}
		last, err := s.store.LastSubmissionAt(ctx, u.ID)
		if err != nil {
			return nil, fmt.Errorf("last submission: %w", err)
		}
		pending, err := s.store.ListPendingSubmissions(ctx, u.ID)
		if err != nil {
			return nil, fmt.Errorf("list pending submissions: %w", err)
		}
		step, world := t.current(prog)
		list.Students = append(list.Students, StudentSummary{
			ID:                 u.ID,
			Name:               u.DisplayName(),
			Email:              u.Email,
			Score:              score,
			Color:              models.LevelFor(score).Color,
			World:              worldRef(world),
			Step:               stepRef(step),
			LastActivity:       last,
			PendingSubmissions: len(pending),
		})
	}
	list.Total = len(list.Students)
	return list, nil
}

// StudentInfo is the contact card of a student.
type StudentInfo struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Health is the current score and its recent history.
type Health struct {
	Current int                   `json:"current"`
	Color   string                `json:"color"`
	History []*models.HealthScore `json:"history"`
}

// TrailProgress is how far a student is along the trail.
type TrailProgress struct {
	CurrentWorld   *WorldRef `json:"current_world"`
	CurrentStep    *StepRef  `json:"current_step"`
	TotalSteps     int       `json:"total_steps"`
	CompletedSteps int       `json:"completed_steps"`
	Percent        float64   `json:"percent"`
}

// PendingItem is a submission waiting for validation, seen from the student page.
type PendingItem struct {
	ID             int64     `json:"id"`
	Step           string    `json:"step"`
	ValidationType string    `json:"validation_type"`
	SubmittedAt    time.Time `json:"submitted_at"`
	HasFile        bool      `json:"has_file"`
	HasText        bool      `json:"has_text"`
}

// Activity is a recent submission and its state.
type Activity struct {
	ID     int64     `json:"id"`
	Step   string    `json:"step"`
	Date   time.Time `json:"date"`
	Status string    `json:"status"`
}

// StudentDetail is the monitor drawer of one student.
type StudentDetail struct {
	Student  StudentInfo   `json:"student"`
	Health   Health        `json:"health"`
	Progress TrailProgress `json:"progress"`
	Pending  []PendingItem `json:"pending_submissions"`
	Recent   []Activity    `json:"recent_activity"`
}

// StudentDetail returns everything the monitor sees about one student.
func (s *Service) StudentDetail(ctx context.Context, studentID int64) (*StudentDetail, error) {
	u, err := s.student(ctx, studentID)
	if err != nil {
		return nil, err
	}
	t, err := s.loadTrail(ctx)
	if err != nil {
		return nil, err
	}
	history, err := s.store.ListHealthScores(ctx, u.ID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("list health scores: %w", err)
	}
	score := models.DefaultHealthScore
	if len(history) > 0 {
		score = history[0].Score
	}
	prog, err := s.store.ListProgressByStudent(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	completed, err := s.store.CountCompletedSteps(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("count completed steps: %w", err)
	}
	pending, err := s.store.ListPendingSubmissions(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("list pending submissions: %w", err)
	}
	recent, err := s.store.ListSubmissionsByStudent(ctx, u.ID, recentLimit)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}

	step, world := t.current(prog)
	d := &StudentDetail{
		Student: StudentInfo{ID: u.ID, Name: u.DisplayName(), Email: u.Email, Phone: u.Phone, CreatedAt: u.CreatedAt},
		Health:  Health{Current: score, Color: models.LevelFor(score).Color, History: history},
		Progress: TrailProgress{
			CurrentWorld:   worldRef(world),
			CurrentStep:    stepRef(step),
			TotalSteps:     len(t.steps),
			CompletedSteps: completed,
			Percent:        percent(completed, len(t.steps)),
		},
		Pending: make([]PendingItem, 0, len(pending)),
		Recent:  make([]Activity, 0, len(recent)),
	}
	if d.Health.History == nil {
		d.Health.History = []*models.HealthScore{}
	}
	// Newest first.
	for i := len(pending) - 1; i >= 0; i-- {
		sub := pending[i]
		item := PendingItem{
			ID:          sub.ID,
			SubmittedAt: sub.SubmittedAt,
			HasFile:     sub.FileURL != "",
			HasText:     sub.Text != "",
		}
		if st := s.stepFor(ctx, t, sub.StepID); st != nil {
			item.Step = st.Title
			item.ValidationType = st.ValidationType
		}
		d.Pending = append(d.Pending, item)
	}
	for _, sub := range recent {
		a := Activity{ID: sub.ID, Date: sub.SubmittedAt, Status: sub.State()}
		if st := s.stepFor(ctx, t, sub.StepID); st != nil {
			a.Step = st.Title
		}
		d.Recent = append(d.Recent, a)
	}
	return d, nil
}

// stepFor looks a step up in the trail, falling back to storage for inactive steps.
func (s *Service) stepFor(ctx context.Context, t *trail, id int64) *models.Step {
	if st := t.step(id); st != nil {
		return st
	}
	st, err := s.store.GetStep(ctx, id)
	if err != nil {
		s.logger.Warn("submission references unknown step", zap.Int64("step_id", id), zap.Error(err))
		return nil
	}
	return st
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*1000) / 10
}

// StudentRef identifies the author of a submission.
type StudentRef struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// PendingSubmission is a submission in the monitor validation queue.
type PendingSubmission struct {
	ID          int64      `json:"id"`
	Student     StudentRef `json:"student"`
	Step        StepRef    `json:"step"`
	World       string     `json:"world"`
	SubmittedAt time.Time  `json:"submitted_at"`
	FileURL     string     `json:"file_url,omitempty"`
	Text        string     `json:"text,omitempty"`
	FormAnswers string     `json:"form_answers,omitempty"`
}

// PendingSubmissions returns the validation queue, oldest first.
func (s *Service) PendingSubmissions(ctx context.Context) ([]PendingSubmission, error) {
	subs, err := s.store.ListPendingSubmissions(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("list pending submissions: %w", err)
	}
	t, err := s.loadTrail(ctx)
	if err != nil {
		return nil, err
	}
	users := make(map[int64]*models.User)
	out := make([]PendingSubmission, 0, len(subs))
	for _, sub := range subs {
		u, ok := users[sub.StudentID]
		if !ok {
			u, err = s.users.GetUserByID(ctx, sub.StudentID)
			if err != nil {
				return nil, fmt.Errorf("get student %d: %w", sub.StudentID, err)
			}
			users[sub.StudentID] = u
		}
		p := PendingSubmission{
			ID:          sub.ID,
			Student:     StudentRef{ID: u.ID, Name: u.DisplayName(), Email: u.Email},
			Step:        StepRef{ID: sub.StepID},
			SubmittedAt: sub.SubmittedAt,
			FileURL:     sub.FileURL,
			Text:        sub.Text,
			FormAnswers: sub.FormAnswers,
		}
		if st := s.stepFor(ctx, t, sub.StepID); st != nil {
			p.Step = *stepRef(st)
			if w := t.worlds[st.WorldID]; w != nil {
				p.World = w.Name
			}
		}
		out = append(out, p)
	}
	return out, nil
}

// Validation is the outcome of approving or rejecting a submission.
type Validation struct {
	Submission *models.Submission    `json:"submission"`
	StepStatus models.ProgressStatus `json:"step_status"`
}

// Validate approves or rejects a pending submission. Approval completes the step; rejection sends
// it back to in-progress and requires feedback.
func (s *Service) Validate(ctx context.Context, monitor *models.User, submissionID int64, approved bool, feedback string) (*Validation, error) {
	sub, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub.Approved != nil {
		return nil, ErrAlreadyValidated
	}
	feedback = strings.TrimSpace(feedback)
	if !approved && feedback == "" {
		return nil, ErrFeedbackRequired
	}
	p, err := s.store.GetProgress(ctx, sub.StudentID, sub.StepID)
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}

	now := s.now()
	sub.Approved = &approved
	sub.Feedback = feedback
	sub.ValidatedBy = &monitor.ID
	sub.ValidatedAt = &now
	if approved {
		p.Status = models.StatusCompleted
		p.CompletedAt = &now
	} else {
		p.Status = models.StatusInProgress
		p.CompletedAt = nil
	}
	if err := s.store.ResolveSubmission(ctx, sub, p); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrAlreadyValidated
		}
		return nil, fmt.Errorf("resolve submission: %w", err)
	}
	s.logger.Info("submission validated",
		zap.Int64("submission_id", sub.ID),
		zap.Bool("approved", approved),
		zap.String("by", monitor.Email))
	return &Validation{Submission: sub, StepStatus: p.Status}, nil
}

// WorldStats counts the students working inside a world.
type WorldStats struct {
	Number         int    `json:"number"`
	Name           string `json:"name"`
	Icon           string `json:"icon,omitempty"`
	TotalSteps     int    `json:"total_steps"`
	ActiveStudents int    `json:"active_students"`
}

// Stats is the monitor dashboard.
type Stats struct {
	TotalStudents      int                        `json:"total_students"`
	Distribution       map[int]int                `json:"distribution"`
	PendingSubmissions int                        `json:"pending_submissions"`
	InactiveStudents   int                        `json:"inactive_students"`
	Worlds             []WorldStats               `json:"worlds"`
	Legend             map[int]models.HealthLevel `json:"legend"`
}

// Stats computes the dashboard counters.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	students, err := s.activeStudents(ctx)
	if err != nil {
		return nil, err
	}
	st := &Stats{
		TotalStudents: len(students),
		Distribution:  map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0},
		Worlds:        []WorldStats{},
		Legend:        models.HealthLegend(),
	}
	for _, u := range students {
		score, err := s.CurrentScore(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		st.Distribution[score]++
	}
	if st.PendingSubmissions, err = s.store.CountPendingSubmissions(ctx); err != nil {
		return nil, fmt.Errorf("count pending submissions: %w", err)
	}
	active, err := s.store.StudentsActiveSince(ctx, s.now().AddDate(0, 0, -s.opts.InactivityDays))
	if err != nil {
		return nil, fmt.Errorf("active students: %w", err)
	}
	for _, u := range students {
		if !active[u.ID] {
			st.InactiveStudents++
		}
	}
	worlds, err := s.store.ListWorlds(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list worlds: %w", err)
	}
	for _, w := range worlds {
		total, err := s.store.CountStepsInWorld(ctx, w.ID)
		if err != nil {
			return nil, fmt.Errorf("count steps: %w", err)
		}
		working, err := s.store.CountStudentsInWorld(ctx, w.ID)
		if err != nil {
			return nil, fmt.Errorf("count students: %w", err)
		}
		st.Worlds = append(st.Worlds, WorldStats{
			Number: w.Number, Name: w.Name, Icon: w.Icon, TotalSteps: total, ActiveStudents: working,
		})
	}
	return st, nil
}
