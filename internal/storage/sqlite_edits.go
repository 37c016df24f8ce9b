package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mindhub/mindlink/internal/models"
)

// RecordEdit appends an entry to the edit log. ID and CreatedAt are filled when empty.
func (s *SQLiteStorage) RecordEdit(ctx context.Context, rec *models.EditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO edit_log (id, file_id, file_name, user_email, action, command, changes, fallback, status, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.FileID, rec.FileName, rec.UserEmail, rec.Action, rec.Command, rec.Changes, rec.Fallback,
		rec.Status, rec.Error, rec.CreatedAt.UTC(),
	)
	return err
}

// ListEdits returns edit log entries, newest first.
func (s *SQLiteStorage) ListEdits(ctx context.Context, offset, limit int) ([]*models.EditRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_id, file_name, user_email, action, command, changes, fallback, status, error, created_at
		 FROM edit_log ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.EditRecord
	for rows.Next() {
		var r models.EditRecord
		if err := rows.Scan(&r.ID, &r.FileID, &r.FileName, &r.UserEmail, &r.Action, &r.Command, &r.Changes,
			&r.Fallback, &r.Status, &r.Error, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
