// Package auth manages accounts, password checks, e-mail verification and login sessions.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mindhub/mindlink/internal/config"
	"github.com/mindhub/mindlink/internal/models"
	"github.com/mindhub/mindlink/internal/storage"
)

var (
	// ErrInvalidCredentials is returned for an unknown e-mail or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInactive is returned when the account has been deactivated.
	ErrInactive = errors.New("account is inactive")
	// ErrUnverified is returned when the e-mail has not been confirmed yet.
	ErrUnverified = errors.New("e-mail not verified")
	// ErrInvalidSession is returned for a missing, expired or revoked session token.
	ErrInvalidSession = errors.New("invalid session")
	// ErrInvalidRole is returned when an update names an unknown role.
	ErrInvalidRole = errors.New("invalid role")
)

// Options configures a Service.
type Options struct {
	SessionTTL      time.Duration
	CodeTTL         time.Duration
	BcryptCost      int
	RequireVerified bool
}

// OptionsFromConfig maps the auth section of the config file.
func OptionsFromConfig(c *config.AuthConfig) Options {
	return Options{
		SessionTTL:      c.SessionTTL,
		CodeTTL:         c.CodeTTL,
		BcryptCost:      c.BcryptCost,
		RequireVerified: c.RequireVerifiedOrDefault(),
	}
}

// Service authenticates users and manages their sessions.
type Service struct {
	users    storage.UserStore
	sessions storage.SessionStore
	mailer   Mailer
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service. A nil mailer logs verification codes instead of sending them.
func New(users storage.UserStore, sessions storage.SessionStore, mailer Mailer, opts Options, options ...Option) *Service {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 14 * 24 * time.Hour
	}
	if opts.CodeTTL <= 0 {
		opts.CodeTTL = 15 * time.Minute
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	s := &Service{
		users:    users,
		sessions: sessions,
		opts:     opts,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, o := range options {
		o(s)
	}
	if mailer == nil {
		mailer = NewLogMailer(s.logger)
	}
	s.mailer = mailer
	return s
}

// Login checks the credentials and opens a session. Legacy plaintext passwords are upgraded to
// bcrypt on the first successful login.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, *models.Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, nil, ErrInvalidCredentials
	}
	u, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get user: %w", err)
	}
	ok, legacy := checkPassword(u.PasswordHash, password)
	if !ok {
		s.logger.Info("login rejected", zap.String("email", u.Email))
		return nil, nil, ErrInvalidCredentials
	}
	if !u.Active {
		return nil, nil, ErrInactive
	}
	if s.opts.RequireVerified && !u.EmailVerified {
		return nil, nil, ErrUnverified
	}

	if legacy {
		hash, err := s.hash(password)
		if err != nil {
			return nil, nil, err
		}
		u.PasswordHash = hash
		s.logger.Info("upgraded legacy password", zap.Int64("user_id", u.ID))
	}
	now := s.now()
	u.LastLoginAt = &now
	if err := s.users.UpdateUser(ctx, u); err != nil {
		return nil, nil, fmt.Errorf("update user: %w", err)
	}

	sess := &models.Session{
		Token:     uuid.NewString(),
		UserID:    u.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.opts.SessionTTL),
	}
	if err := s.sessions.CreateSession(ctx, sess); err != nil {
		return nil, nil, fmt.Errorf("create session: %w", err)
	}
	s.logger.Info("login", zap.Int64("user_id", u.ID), zap.String("role", string(u.Role)))
	return u, sess, nil
}

// Logout ends the session. Unknown tokens are not an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessions.DeleteSession(ctx, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// SessionUser returns the active user behind a session token.
func (s *Service) SessionUser(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrInvalidSession
	}
	sess, err := s.sessions.GetSession(ctx, token)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrInvalidSession
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess.Expired(s.now()) {
		_ = s.sessions.DeleteSession(ctx, token)
		return nil, ErrInvalidSession
	}
	u, err := s.users.GetUserByID(ctx, sess.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrInvalidSession
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if !u.Active {
		return nil, ErrInvalidSession
	}
	return u, nil
}

// PurgeSessions deletes expired sessions and returns how many were removed.
func (s *Service) PurgeSessions(ctx context.Context) (int64, error) {
	return s.sessions.DeleteExpiredSessions(ctx, s.now())
}

// ListUsers lists accounts, optionally restricted to one role.
func (s *Service) ListUsers(ctx context.Context, role models.Role) ([]*models.User, error) {
	if role != "" && !role.Valid() {
		return nil, ErrInvalidRole
	}
	return s.users.ListUsers(ctx, role)
}

// UpdateUser applies an admin change of role or active flag. Deactivating an account ends all
// of its sessions.
func (s *Service) UpdateUser(ctx context.Context, id int64, upd models.UserUpdate) (*models.User, error) {
	u, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Role != nil {
		if !upd.Role.Valid() {
			return nil, ErrInvalidRole
		}
		u.Role = *upd.Role
	}
	if upd.Active != nil {
		u.Active = *upd.Active
	}
	if err := s.users.UpdateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	if !u.Active {
		if err := s.sessions.DeleteUserSessions(ctx, u.ID); err != nil {
			return nil, fmt.Errorf("revoke sessions: %w", err)
		}
	}
	return u, nil
}

func (s *Service) hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// checkPassword compares password with stored. legacy is true when stored is a plaintext row.
func checkPassword(stored, password string) (ok, legacy bool) {
	if isBcrypt(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil, false
	}
	if stored == "" {
		return false, false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1, true
}

func isBcrypt(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}
