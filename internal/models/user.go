package models

import (
	"strings"
	"time"
)

// Role is a user's access level.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleMonitor Role = "monitor"
	RoleStudent Role = "student"
	RoleUser    Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleMonitor, RoleStudent, RoleUser:
		return true
	}
	return false
}

// CanValidate reports whether the role may review submissions and manage health scores.
func (r Role) CanValidate() bool {
	return r == RoleAdmin || r == RoleMonitor
}

// User is an account. PasswordHash holds a bcrypt hash or, for legacy rows, the plaintext password.
type User struct {
	ID               int64      `json:"id" db:"id"`
	Email            string     `json:"email" db:"email"`
	PasswordHash     string     `json:"-" db:"password_hash"`
	FirstName        string     `json:"first_name" db:"first_name"`
	LastName         string     `json:"last_name" db:"last_name"`
	Phone            string     `json:"phone,omitempty" db:"phone"`
	BirthDate        *time.Time `json:"birth_date,omitempty" db:"birth_date"`
	Role             Role       `json:"role" db:"role"`
	Active           bool       `json:"active" db:"active"`
	EmailVerified    bool       `json:"email_verified" db:"email_verified"`
	VerificationCode string     `json:"-" db:"verification_code"`
	CodeExpiresAt    *time.Time `json:"-" db:"code_expires_at"`
	CodeUsed         bool       `json:"-" db:"code_used"`
	CodeAttempts     int        `json:"-" db:"code_attempts"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
}

// DisplayName returns the first name, or the local part of the e-mail when no name is set.
func (u *User) DisplayName() string {
	if u.FirstName != "" {
		return u.FirstName
	}
	if i := strings.IndexByte(u.Email, '@'); i > 0 {
		return u.Email[:i]
	}
	return u.Email
}

// FullName joins first and last name.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Session is a server-side login session referenced by a cookie token.
type Session struct {
	Token     string    `json:"-" db:"token"`
	UserID    int64     `json:"user_id" db:"user_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
}

// Expired reports whether the session is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// UserUpdate is a partial admin update of an account.
type UserUpdate struct {
	Role   *Role `json:"role,omitempty"`
	Active *bool `json:"active,omitempty"`
}
