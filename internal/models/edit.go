package models

import "time"

// EditRecord is an entry of the document edit log.
type EditRecord struct {
	ID        string    `json:"id" db:"id"`
	FileID    string    `json:"file_id" db:"file_id"`
	FileName  string    `json:"file_name" db:"file_name"`
	UserEmail string    `json:"user_email" db:"user_email"`
	Action    string    `json:"action" db:"action"`
	Command   string    `json:"command" db:"command"`
	Changes   int       `json:"changes" db:"changes"`
	Fallback  bool      `json:"fallback" db:"fallback"`
	Status    string    `json:"status" db:"status"`
	Error     string    `json:"error,omitempty" db:"error"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Edit log statuses.
const (
	EditApplied = "applied"
	EditNoMatch = "no_match"
	EditFailed  = "failed"
)
