package progress

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mindhub/mindlink/internal/models"
)

// Alerter delivers a reminder to a student's phone.
type Alerter interface {
	Send(ctx context.Context, phone, message string) error
}

// LogAlerter records alerts in the log instead of delivering them.
type LogAlerter struct {
	logger *zap.Logger
}

// NewLogAlerter creates a LogAlerter.
func NewLogAlerter(l *zap.Logger) *LogAlerter {
	if l == nil {
		l = zap.NewNop()
	}
	return &LogAlerter{logger: l}
}

// Send logs the alert.
func (a *LogAlerter) Send(ctx context.Context, phone, message string) error {
	a.logger.Info("student alert prepared", zap.String("phone", phone), zap.String("message", message))
	return nil
}

// AlertResult reports a prepared alert.
type AlertResult struct {
	StudentID int64  `json:"student_id"`
	Phone     string `json:"phone"`
	Message   string `json:"message"`
}

// Alert sends a reminder to a student. An empty message uses the default reminder.
func (s *Service) Alert(ctx context.Context, studentID int64, message string) (*AlertResult, error) {
	u, err := s.student(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(u.Phone) == "" {
		return nil, ErrNoPhone
	}
	message = strings.TrimSpace(message)
	if message == "" {
		message = defaultAlert(u)
	}
	if err := s.alerter.Send(ctx, u.Phone, message); err != nil {
		return nil, fmt.Errorf("send alert: %w", err)
	}
	return &AlertResult{StudentID: u.ID, Phone: u.Phone, Message: message}, nil
}

func defaultAlert(u *models.User) string {
	return fmt.Sprintf("Olá %s! Você tem atividades pendentes no MindLink.", u.DisplayName())
}
