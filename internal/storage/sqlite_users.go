package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mindhub/mindlink/internal/models"
)

const userColumns = `id, email, password_hash, first_name, last_name, phone, birth_date, role, active,
	email_verified, verification_code, code_expires_at, code_used, code_attempts, created_at, last_login_at`

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var role string
	var birth, expires, lastLogin sql.NullTime
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Phone, &birth, &role,
		&u.Active, &u.EmailVerified, &u.VerificationCode, &expires, &u.CodeUsed, &u.CodeAttempts, &u.CreatedAt, &lastLogin); err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	u.BirthDate = timePtr(birth)
	u.CodeExpiresAt = timePtr(expires)
	u.LastLoginAt = timePtr(lastLogin)
	return &u, nil
}

// CreateUser inserts an account and sets its ID. Returns ErrDuplicate when the e-mail is taken.
func (s *SQLiteStorage) CreateUser(ctx context.Context, u *models.User) error {
	u.Email = normalizeEmail(u.Email)
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, first_name, last_name, phone, birth_date, role, active,
		   email_verified, verification_code, code_expires_at, code_used, code_attempts, created_at, last_login_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Phone, nullTime(u.BirthDate), string(u.Role), u.Active,
		u.EmailVerified, u.VerificationCode, nullTime(u.CodeExpiresAt), u.CodeUsed, u.CodeAttempts, u.CreatedAt.UTC(), nullTime(u.LastLoginAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", u.Email, ErrDuplicate)
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = id
	return nil
}

// GetUserByID returns an account by ID.
func (s *SQLiteStorage) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return u, err
}

// GetUserByEmail returns an account by e-mail, ignoring case and surrounding spaces.
func (s *SQLiteStorage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	email = normalizeEmail(email)
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	return u, err
}

// UpdateUser writes every mutable field of u.
func (s *SQLiteStorage) UpdateUser(ctx context.Context, u *models.User) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, first_name = ?, last_name = ?, phone = ?, birth_date = ?, role = ?,
		   active = ?, email_verified = ?, verification_code = ?, code_expires_at = ?, code_used = ?, code_attempts = ?, last_login_at = ?
		 WHERE id = ?`,
		u.PasswordHash, u.FirstName, u.LastName, u.Phone, nullTime(u.BirthDate), string(u.Role),
		u.Active, u.EmailVerified, u.VerificationCode, nullTime(u.CodeExpiresAt), u.CodeUsed, u.CodeAttempts, nullTime(u.LastLoginAt),
		u.ID,
	)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("user %d: %w", u.ID, ErrNotFound)
	}
	return nil
}

// ListUsers returns accounts ordered by ID, optionally filtered by role.
func (s *SQLiteStorage) ListUsers(ctx context.Context, role models.Role) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var args []interface{}
	if role != "" {
		query += ` WHERE role = ?`
		args = append(args, string(role))
	}
	query += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CreateSession stores a login session.
func (s *SQLiteStorage) CreateSession(ctx context.Context, sess *models.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		sess.Token, sess.UserID, sess.CreatedAt.UTC(), sess.ExpiresAt.UTC(),
	)
	return err
}

// GetSession returns a session by token.
func (s *SQLiteStorage) GetSession(ctx context.Context, token string) (*models.Session, error) {
	var sess models.Session
	err := s.db.QueryRowContext(ctx,
		`SELECT token, user_id, created_at, expires_at FROM sessions WHERE token = ?`, token,
	).Scan(&sess.Token, &sess.UserID, &sess.CreatedAt, &sess.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// DeleteSession removes a session by token.
func (s *SQLiteStorage) DeleteSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token)
	return err
}

// DeleteUserSessions removes every session of a user.
func (s *SQLiteStorage) DeleteUserSessions(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID)
	return err
}

// DeleteExpiredSessions removes sessions that expired at or before now and returns how many.
func (s *SQLiteStorage) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
