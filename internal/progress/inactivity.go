package progress

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mindhub/mindlink/internal/models"
)

// InactiveStudent is a student flagged by the inactivity check. DaysInactive is -1 when the
// student never submitted anything.
type InactiveStudent struct {
	ID            int64      `json:"id"`
	Email         string     `json:"email"`
	LastActivity  *time.Time `json:"last_activity"`
	DaysInactive  int        `json:"days_inactive"`
	PreviousScore int        `json:"previous_score"`
}

// InactivityReport is the outcome of CheckInactivity.
type InactivityReport struct {
	Days     int               `json:"days"`
	Score    int               `json:"score"`
	DryRun   bool              `json:"dry_run"`
	Students []InactiveStudent `json:"students"`
}

// CheckInactivity gives score to every active student without a submission in the last days,
// unless their current score already equals it. With dryRun nothing is written.
func (s *Service) CheckInactivity(ctx context.Context, days, score int, dryRun bool) (*InactivityReport, error) {
	if days <= 0 {
		days = DefaultInactivityDays
	}
	if !models.ValidHealthScore(score) {
		return nil, ErrInvalidScore
	}
	now := s.now()
	active, err := s.store.StudentsActiveSince(ctx, now.AddDate(0, 0, -days))
	if err != nil {
		return nil, fmt.Errorf("active students: %w", err)
	}
	students, err := s.activeStudents(ctx)
	if err != nil {
		return nil, err
	}

	report := &InactivityReport{Days: days, Score: score, DryRun: dryRun, Students: []InactiveStudent{}}
	for _, u := range students {
		if active[u.ID] {
			continue
		}
		current, err := s.CurrentScore(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		if current == score {
			continue
		}
		last, err := s.store.LastSubmissionAt(ctx, u.ID)
		if err != nil {
			return nil, fmt.Errorf("last submission: %w", err)
		}
		in := InactiveStudent{ID: u.ID, Email: u.Email, LastActivity: last, DaysInactive: -1, PreviousScore: current}
		note := "Inatividade detectada (nenhuma submissão)"
		if last != nil {
			in.DaysInactive = int(now.Sub(*last).Hours() / 24)
			note = fmt.Sprintf("Inatividade detectada (%d dias sem submissões)", in.DaysInactive)
		}
		report.Students = append(report.Students, in)
		if dryRun {
			continue
		}
		if err := s.store.AddHealthScore(ctx, &models.HealthScore{
			StudentID: u.ID,
			Score:     score,
			Automatic: true,
			Note:      note,
			CreatedAt: now,
		}); err != nil {
			return nil, fmt.Errorf("add health score: %w", err)
		}
	}
	s.logger.Info("inactivity check finished",
		zap.Int("days", days),
		zap.Int("flagged", len(report.Students)),
		zap.Bool("dry_run", dryRun))
	return report, nil
}
