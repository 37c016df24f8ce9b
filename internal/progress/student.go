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

// SubmissionInput is a student's delivery for a step.
type SubmissionInput struct {
	Text        string `json:"text"`
	FileURL     string `json:"file_url"`
	FormAnswers string `json:"form_answers"`
}

func (in *SubmissionInput) empty() bool {
	return strings.TrimSpace(in.Text) == "" && strings.TrimSpace(in.FileURL) == "" && strings.TrimSpace(in.FormAnswers) == ""
}

// Submit delivers work for a step and puts the step in pending validation.
func (s *Service) Submit(ctx context.Context, student *models.User, stepID int64, in SubmissionInput) (*models.Submission, error) {
	if student.Role != models.RoleStudent {
		return nil, ErrNotStudent
	}
	if in.empty() {
		return nil, ErrEmptySubmission
	}
	step, err := s.store.GetStep(ctx, stepID)
	if err != nil {
		return nil, err
	}
	if !step.Active {
		return nil, ErrStepInactive
	}

	now := s.now()
	p, err := s.store.GetProgress(ctx, student.ID, stepID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		p = &models.StudentProgress{StudentID: student.ID, StepID: stepID, StartedAt: now}
	case err != nil:
		return nil, fmt.Errorf("get progress: %w", err)
	case p.Status == models.StatusCompleted:
		return nil, ErrStepCompleted
	case p.Status == models.StatusPendingValidation:
		return nil, ErrAlreadyPending
	}
	p.Status = models.StatusPendingValidation
	if err := s.store.UpsertProgress(ctx, p); err != nil {
		return nil, fmt.Errorf("update progress: %w", err)
	}

	sub := &models.Submission{
		ProgressID:  p.ID,
		StudentID:   student.ID,
		StepID:      stepID,
		Text:        strings.TrimSpace(in.Text),
		FileURL:     strings.TrimSpace(in.FileURL),
		FormAnswers: strings.TrimSpace(in.FormAnswers),
		SubmittedAt: now,
	}
	if err := s.store.CreateSubmission(ctx, sub); err != nil {
		return nil, fmt.Errorf("create submission: %w", err)
	}
	s.logger.Info("submission received", zap.Int64("student_id", student.ID), zap.Int64("step_id", stepID))
	return sub, nil
}

// StepView is a step and the student's state on it. Status is empty when not started.
type StepView struct {
	ID             int64                 `json:"id"`
	Order          int                   `json:"order"`
	Title          string                `json:"title"`
	Description    string                `json:"description,omitempty"`
	ValidationType string                `json:"validation_type"`
	Points         int                   `json:"points"`
	Status         models.ProgressStatus `json:"status,omitempty"`
	CompletedAt    *time.Time            `json:"completed_at,omitempty"`
}

// WorldView groups the steps of a world.
type WorldView struct {
	WorldRef
	Steps []StepView `json:"steps"`
}

// TrailView is the student's own view of the trail.
type TrailView struct {
	Score    int           `json:"score"`
	Color    string        `json:"color"`
	Progress TrailProgress `json:"progress"`
	Worlds   []WorldView   `json:"worlds"`
}

// StudentTrail returns the trail with the student's state on every active step.
func (s *Service) StudentTrail(ctx context.Context, student *models.User) (*TrailView, error) {
	if student.Role != models.RoleStudent {
		return nil, ErrNotStudent
	}
	t, err := s.loadTrail(ctx)
	if err != nil {
		return nil, err
	}
	prog, err := s.store.ListProgressByStudent(ctx, student.ID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	score, err := s.CurrentScore(ctx, student.ID)
	if err != nil {
		return nil, err
	}

	byStep := make(map[int64]*models.StudentProgress, len(prog))
	for _, p := range prog {
		byStep[p.StepID] = p
	}
	view := &TrailView{Score: score, Color: models.LevelFor(score).Color, Worlds: []WorldView{}}
	index := make(map[int64]int)
	completed := 0
	for _, st := range t.steps {
		w := t.worlds[st.WorldID]
		if w == nil {
			continue
		}
		i, ok := index[w.ID]
		if !ok {
			i = len(view.Worlds)
			index[w.ID] = i
			view.Worlds = append(view.Worlds, WorldView{WorldRef: *worldRef(w)})
		}
		sv := StepView{
			ID: st.ID, Order: st.Order, Title: st.Title, Description: st.Description,
			ValidationType: st.ValidationType, Points: st.Points,
		}
		if p := byStep[st.ID]; p != nil {
			sv.Status = p.Status
			sv.CompletedAt = p.CompletedAt
			if p.Status == models.StatusCompleted {
				completed++
			}
		}
		view.Worlds[i].Steps = append(view.Worlds[i].Steps, sv)
	}
	step, world := t.current(prog)
	view.Progress = TrailProgress{
		CurrentWorld:   worldRef(world),
		CurrentStep:    stepRef(step),
		TotalSteps:     len(t.steps),
		CompletedSteps: completed,
		Percent:        percent(completed, len(t.steps)),
	}
	return view, nil
}
