package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mindhub/mindlink/internal/models"
)

// CreateWorld inserts a world and sets its ID.
func (s *SQLiteStorage) CreateWorld(ctx context.Context, w *models.World) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO worlds (number, name, description, icon, active) VALUES (?, ?, ?, ?, ?)`,
		w.Number, w.Name, w.Description, w.Icon, w.Active,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("world %d: %w", w.Number, ErrDuplicate)
		}
		return err
	}
	w.ID, err = res.LastInsertId()
	return err
}

// ListWorlds returns worlds ordered by number.
func (s *SQLiteStorage) ListWorlds(ctx context.Context, activeOnly bool) ([]*models.World, error) {
	query := `SELECT id, number, name, description, icon, active FROM worlds`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var worlds []*models.World
	for rows.Next() {
		var w models.World
		if err := rows.Scan(&w.ID, &w.Number, &w.Name, &w.Description, &w.Icon, &w.Active); err != nil {
			return nil, err
		}
		worlds = append(worlds, &w)
	}
	return worlds, rows.Err()
}

// CreateStep inserts a step and sets its ID.
func (s *SQLiteStorage) CreateStep(ctx context.Context, st *models.Step) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO steps (world_id, ord, title, description, validation_type, points, active)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		st.WorldID, st.Order, st.Title, st.Description, st.ValidationType, st.Points, st.Active,
	)
	if err != nil {
		return err
	}
	st.ID, err = res.LastInsertId()
	return err
}

const stepColumns = `s.id, s.world_id, s.ord, s.title, s.description, s.validation_type, s.points, s.active`

func scanStep(row rowScanner) (*models.Step, error) {
	var st models.Step
	if err := row.Scan(&st.ID, &st.WorldID, &st.Order, &st.Title, &st.Description, &st.ValidationType, &st.Points, &st.Active); err != nil {
		return nil, err
	}
	return &st, nil
}

// GetStep returns a step by ID.
func (s *SQLiteStorage) GetStep(ctx context.Context, id int64) (*models.Step, error) {
	st, err := scanStep(s.db.QueryRowContext(ctx, `SELECT `+stepColumns+` FROM steps s WHERE s.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("step %d: %w", id, ErrNotFound)
	}
	return st, err
}

// ListSteps returns steps ordered by world number then step order.
func (s *SQLiteStorage) ListSteps(ctx context.Context, activeOnly bool) ([]*models.Step, error) {
	query := `SELECT ` + stepColumns + ` FROM steps s JOIN worlds w ON w.id = s.world_id`
	if activeOnly {
		query += ` WHERE s.active = 1 AND w.active = 1`
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY w.number, s.ord, s.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []*models.Step
	for rows.Next() {
		st, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

// CountStepsInWorld returns the number of steps in a world.
func (s *SQLiteStorage) CountStepsInWorld(ctx context.Context, worldID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM steps WHERE world_id = ?`, worldID).Scan(&n)
	return n, err
}

const progressColumns = `id, student_id, step_id, status, started_at, completed_at`

func scanProgress(row rowScanner) (*models.StudentProgress, error) {
	var p models.StudentProgress
	var status string
	var completed sql.NullTime
	if err := row.Scan(&p.ID, &p.StudentID, &p.StepID, &status, &p.StartedAt, &completed); err != nil {
		return nil, err
	}
	p.Status = models.ProgressStatus(status)
	p.CompletedAt = timePtr(completed)
	return &p, nil
}

// GetProgress returns the progress of a student on a step.
func (s *SQLiteStorage) GetProgress(ctx context.Context, studentID, stepID int64) (*models.StudentProgress, error) {
	p, err := scanProgress(s.db.QueryRowContext(ctx,
		`SELECT `+progressColumns+` FROM student_progress WHERE student_id = ? AND step_id = ?`, studentID, stepID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("progress %d/%d: %w", studentID, stepID, ErrNotFound)
	}
	return p, err
}

func upsertProgress(ctx context.Context, ex execer, p *models.StudentProgress) error {
	if p.StartedAt.IsZero() {
		p.StartedAt = time.Now()
	}
	_, err := ex.ExecContext(ctx,
		`INSERT INTO student_progress (student_id, step_id, status, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(student_id, step_id) DO UPDATE SET status = excluded.status, completed_at = excluded.completed_at`,
		p.StudentID, p.StepID, string(p.Status), p.StartedAt.UTC(), nullTime(p.CompletedAt),
	)
	return err
}

// UpsertProgress creates or updates the progress row of (student, step) and sets its ID.
func (s *SQLiteStorage) UpsertProgress(ctx context.Context, p *models.StudentProgress) error {
	if err := upsertProgress(ctx, s.db, p); err != nil {
		return err
	}
	return s.db.QueryRowContext(ctx,
		`SELECT id FROM student_progress WHERE student_id = ? AND step_id = ?`, p.StudentID, p.StepID,
	).Scan(&p.ID)
}

// ListProgressByStudent returns all progress rows of a student.
func (s *SQLiteStorage) ListProgressByStudent(ctx context.Context, studentID int64) ([]*models.StudentProgress, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+progressColumns+` FROM student_progress WHERE student_id = ? ORDER BY id`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.StudentProgress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountCompletedSteps returns how many steps a student has completed.
func (s *SQLiteStorage) CountCompletedSteps(ctx context.Context, studentID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM student_progress WHERE student_id = ? AND status = ?`,
		studentID, string(models.StatusCompleted),
	).Scan(&n)
	return n, err
}

// CountStudentsInWorld counts distinct students with an in-progress or pending step in the world.
func (s *SQLiteStorage) CountStudentsInWorld(ctx context.Context, worldID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT p.student_id) FROM student_progress p
		 JOIN steps s ON s.id = p.step_id
		 WHERE s.world_id = ? AND p.status IN (?, ?)`,
		worldID, string(models.StatusInProgress), string(models.StatusPendingValidation),
	).Scan(&n)
	return n, err
}

const submissionColumns = `sub.id, sub.progress_id, p.student_id, p.step_id, sub.text, sub.file_url, sub.form_answers,
	sub.submitted_at, sub.approved, sub.feedback, sub.validated_by, sub.validated_at`

const submissionFrom = ` FROM submissions sub JOIN student_progress p ON p.id = sub.progress_id`

func scanSubmission(row rowScanner) (*models.Submission, error) {
	var sub models.Submission
	var approved sql.NullBool
	var validatedBy sql.NullInt64
	var validatedAt sql.NullTime
	if err := row.Scan(&sub.ID, &sub.ProgressID, &sub.StudentID, &sub.StepID, &sub.Text, &sub.FileURL, &sub.FormAnswers,
		&sub.SubmittedAt, &approved, &sub.Feedback, &validatedBy, &validatedAt); err != nil {
		return nil, err
	}
	if approved.Valid {
		v := approved.Bool
		sub.Approved = &v
	}
	if validatedBy.Valid {
		v := validatedBy.Int64
		sub.ValidatedBy = &v
	}
	sub.ValidatedAt = timePtr(validatedAt)
	return &sub, nil
}

func querySubmissions(ctx context.Context, db *sql.DB, query string, args ...interface{}) ([]*models.Submission, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// CreateSubmission inserts a pending submission and sets its ID.
func (s *SQLiteStorage) CreateSubmission(ctx context.Context, sub *models.Submission) error {
	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO submissions (progress_id, text, file_url, form_answers, submitted_at) VALUES (?, ?, ?, ?, ?)`,
		sub.ProgressID, sub.Text, sub.FileURL, sub.FormAnswers, sub.SubmittedAt.UTC(),
	)
	if err != nil {
		return err
	}
	sub.ID, err = res.LastInsertId()
	return err
}

// GetSubmission returns a submission by ID.
func (s *SQLiteStorage) GetSubmission(ctx context.Context, id int64) (*models.Submission, error) {
	sub, err := scanSubmission(s.db.QueryRowContext(ctx, `SELECT `+submissionColumns+submissionFrom+` WHERE sub.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("submission %d: %w", id, ErrNotFound)
	}
	return sub, err
}

// ResolveSubmission stores the validation fields of sub and the progress row p in one transaction.
func (s *SQLiteStorage) ResolveSubmission(ctx context.Context, sub *models.Submission, p *models.StudentProgress) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var approved interface{}
	if sub.Approved != nil {
		approved = *sub.Approved
	}
	var validatedBy interface{}
	if sub.ValidatedBy != nil {
		validatedBy = *sub.ValidatedBy
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE submissions SET approved = ?, feedback = ?, validated_by = ?, validated_at = ?
		 WHERE id = ? AND approved IS NULL`,
		approved, sub.Feedback, validatedBy, nullTime(sub.ValidatedAt), sub.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("pending submission %d: %w", sub.ID, ErrNotFound)
	}
	if err := upsertProgress(ctx, tx, p); err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	return tx.Commit()
}

// ListPendingSubmissions returns unvalidated submissions oldest first; studentID 0 lists all students.
func (s *SQLiteStorage) ListPendingSubmissions(ctx context.Context, studentID int64) ([]*models.Submission, error) {
	query := `SELECT ` + submissionColumns + submissionFrom + ` WHERE sub.approved IS NULL`
	var args []interface{}
	if studentID != 0 {
		query += ` AND p.student_id = ?`
		args = append(args, studentID)
	}
	return querySubmissions(ctx, s.db, query+` ORDER BY sub.submitted_at, sub.id`, args...)
}

// ListSubmissionsByStudent returns up to limit submissions of a student, newest first.
func (s *SQLiteStorage) ListSubmissionsByStudent(ctx context.Context, studentID int64, limit int) ([]*models.Submission, error) {
	return querySubmissions(ctx, s.db,
		`SELECT `+submissionColumns+submissionFrom+` WHERE p.student_id = ? ORDER BY sub.submitted_at DESC, sub.id DESC LIMIT ?`,
		studentID, limit)
}

// CountPendingSubmissions returns the number of unvalidated submissions.
func (s *SQLiteStorage) CountPendingSubmissions(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM submissions WHERE approved IS NULL`).Scan(&n)
	return n, err
}

// LastSubmissionAt returns the time of the student's latest submission, or nil when none.
func (s *SQLiteStorage) LastSubmissionAt(ctx context.Context, studentID int64) (*time.Time, error) {
	subs, err := s.ListSubmissionsByStudent(ctx, studentID, 1)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, nil
	}
	t := subs[0].SubmittedAt
	return &t, nil
}

// StudentsActiveSince returns the IDs of students with a submission at or after since.
func (s *SQLiteStorage) StudentsActiveSince(ctx context.Context, since time.Time) (map[int64]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT p.student_id`+submissionFrom+` WHERE sub.submitted_at >= ?`, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	active := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		active[id] = true
	}
	return active, rows.Err()
}

// AddHealthScore records a health score and sets its ID.
func (s *SQLiteStorage) AddHealthScore(ctx context.Context, h *models.HealthScore) error {
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO health_scores (student_id, score, automatic, note, created_at) VALUES (?, ?, ?, ?, ?)`,
		h.StudentID, h.Score, h.Automatic, h.Note, h.CreatedAt.UTC(),
	)
	if err != nil {
		return err
	}
	h.ID, err = res.LastInsertId()
	return err
}

// ListHealthScores returns up to limit scores of a student, newest first.
func (s *SQLiteStorage) ListHealthScores(ctx context.Context, studentID int64, limit int) ([]*models.HealthScore, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, student_id, score, automatic, note, created_at FROM health_scores
		 WHERE student_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		studentID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.HealthScore
	for rows.Next() {
		var h models.HealthScore
		if err := rows.Scan(&h.ID, &h.StudentID, &h.Score, &h.Automatic, &h.Note, &h.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}
