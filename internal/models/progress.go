package models

import "time"

// ProgressStatus is the state of a student on a step.
type ProgressStatus string

const (
	StatusInProgress        ProgressStatus = "in_progress"
	StatusPendingValidation ProgressStatus = "pending_validation"
	StatusCompleted         ProgressStatus = "completed"
)

// World groups steps of the learning trail.
type World struct {
	ID          int64  `json:"id" db:"id"`
	Number      int    `json:"number" db:"number"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description,omitempty" db:"description"`
	Icon        string `json:"icon,omitempty" db:"icon"`
	Active      bool   `json:"active" db:"active"`
}

// Step is a unit of work inside a world.
type Step struct {
	ID             int64  `json:"id" db:"id"`
	WorldID        int64  `json:"world_id" db:"world_id"`
	Order          int    `json:"order" db:"ord"`
	Title          string `json:"title" db:"title"`
	Description    string `json:"description,omitempty" db:"description"`
	ValidationType string `json:"validation_type" db:"validation_type"`
	Points         int    `json:"points" db:"points"`
	Active         bool   `json:"active" db:"active"`
}

// StudentProgress links a student to a step.
type StudentProgress struct {
	ID          int64          `json:"id" db:"id"`
	StudentID   int64          `json:"student_id" db:"student_id"`
	StepID      int64          `json:"step_id" db:"step_id"`
	Status      ProgressStatus `json:"status" db:"status"`
	StartedAt   time.Time      `json:"started_at" db:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
}

// Submission is a student's delivery for a step. Approved is nil while pending.
type Submission struct {
	ID          int64      `json:"id" db:"id"`
	ProgressID  int64      `json:"progress_id" db:"progress_id"`
	StudentID   int64      `json:"student_id" db:"student_id"`
	StepID      int64      `json:"step_id" db:"step_id"`
	Text        string     `json:"text,omitempty" db:"text"`
	FileURL     string     `json:"file_url,omitempty" db:"file_url"`
	FormAnswers string     `json:"form_answers,omitempty" db:"form_answers"`
	SubmittedAt time.Time  `json:"submitted_at" db:"submitted_at"`
	Approved    *bool      `json:"approved" db:"approved"`
	Feedback    string     `json:"feedback,omitempty" db:"feedback"`
	ValidatedBy *int64     `json:"validated_by,omitempty" db:"validated_by"`
	ValidatedAt *time.Time `json:"validated_at,omitempty" db:"validated_at"`
}

// State returns "pending", "approved" or "rejected".
func (s *Submission) State() string {
	switch {
	case s.Approved == nil:
		return "pending"
	case *s.Approved:
		return "approved"
	default:
		return "rejected"
	}
}

// HealthScore is a 1..5 engagement score recorded for a student.
type HealthScore struct {
	ID        int64     `json:"id" db:"id"`
	StudentID int64     `json:"student_id" db:"student_id"`
	Score     int       `json:"score" db:"score"`
	Automatic bool      `json:"automatic" db:"automatic"`
	Note      string    `json:"note,omitempty" db:"note"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// DefaultHealthScore is the current score of a student with no records.
const DefaultHealthScore = 3

// HealthLevel is the display colour and label of a score.
type HealthLevel struct {
	Color string `json:"color"`
	Label string `json:"label"`
}

var healthLevels = map[int]HealthLevel{
	5: {Color: "#28a745", Label: "Excelente"},
	4: {Color: "#7cb342", Label: "Bom"},
	3: {Color: "#ffc107", Label: "Regular"},
	2: {Color: "#ff9800", Label: "Atenção"},
	1: {Color: "#dc3545", Label: "Crítico"},
}

// ValidHealthScore reports whether score is within 1..5.
func ValidHealthScore(score int) bool {
	return score >= 1 && score <= 5
}

// LevelFor returns the level of score; out-of-range scores map to the default level.
func LevelFor(score int) HealthLevel {
	if l, ok := healthLevels[score]; ok {
		return l
	}
	return healthLevels[DefaultHealthScore]
}

// HealthLegend returns the colour legend for all scores.
func HealthLegend() map[int]HealthLevel {
	out := make(map[int]HealthLevel, len(healthLevels))
	for k, v := range healthLevels {
		out[k] = v
	}
	return out
}
