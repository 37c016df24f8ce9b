package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mindhub/mindlink/internal/models"
	"github.com/mindhub/mindlink/internal/storage"
)

// MinPasswordLength is the shortest password accepted at signup.
const MinPasswordLength = 6

const codeDigits = 6

// MaxCodeAttempts is how many wrong codes invalidate the current verification code.
const MaxCodeAttempts = 5

var (
	// ErrEmailTaken is returned when signing up with an e-mail already in use.
	ErrEmailTaken = errors.New("e-mail already registered")
	// ErrInvalidEmail is returned for an e-mail without a local part and a domain.
	ErrInvalidEmail = errors.New("invalid e-mail")
	// ErrWeakPassword is returned for passwords shorter than MinPasswordLength.
	ErrWeakPassword = errors.New("password too short")
	// ErrInvalidCode is returned for a wrong or already used verification code.
	ErrInvalidCode = errors.New("invalid verification code")
	// ErrCodeExpired is returned when the verification code is past its TTL.
	ErrCodeExpired = errors.New("verification code expired")
	// ErrAlreadyVerified is returned when the e-mail was confirmed before.
	ErrAlreadyVerified = errors.New("e-mail already verified")
	// ErrTooManyAttempts is returned once MaxCodeAttempts wrong codes were entered. A new code
	// must be requested.
	ErrTooManyAttempts = errors.New("too many verification attempts")
)

// SignupInput is a self-service registration.
type SignupInput struct {
	Email     string     `json:"email"`
	Password  string     `json:"password"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Phone     string     `json:"phone"`
	BirthDate *time.Time `json:"birth_date"`
}

// Validate checks the required fields.
func (in *SignupInput) Validate() error {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	at := strings.IndexByte(in.Email, '@')
	if at < 1 || at == len(in.Email)-1 || strings.ContainsAny(in.Email, " \t") {
		return ErrInvalidEmail
	}
	if len(in.Password) < MinPasswordLength {
		return ErrWeakPassword
	}
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Phone = strings.TrimSpace(in.Phone)
	return nil
}

// Signup registers a student account and sends the verification code. The account exists even
// when delivery fails; ResendCode sends a new code.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}
	code, err := newCode()
	if err != nil {
		return nil, err
	}
	now := s.now()
	expires := now.Add(s.opts.CodeTTL)
	u := &models.User{
		Email:            in.Email,
		PasswordHash:     hash,
		FirstName:        in.FirstName,
		LastName:         in.LastName,
		Phone:            in.Phone,
		BirthDate:        in.BirthDate,
		Role:             models.RoleStudent,
		Active:           true,
		EmailVerified:    false,
		VerificationCode: code,
		CodeExpiresAt:    &expires,
		CreatedAt:        now,
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info("signup", zap.Int64("user_id", u.ID), zap.String("email", u.Email))
	if err := s.mailer.SendVerificationCode(ctx, u.Email, code); err != nil {
		return u, fmt.Errorf("send verification code: %w", err)
	}
	return u, nil
}

// VerifyEmail confirms the e-mail with the code sent at signup. A code is accepted once.
func (s *Service) VerifyEmail(ctx context.Context, email, code string) (*models.User, error) {
	u, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrInvalidCode
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u.EmailVerified {
		return nil, ErrAlreadyVerified
	}
	if u.CodeAttempts >= MaxCodeAttempts {
		return nil, ErrTooManyAttempts
	}
	code = strings.TrimSpace(code)
	if u.CodeUsed || u.VerificationCode == "" {
		return nil, ErrInvalidCode
	}
	if subtle.ConstantTimeCompare([]byte(u.VerificationCode), []byte(code)) != 1 {
		return nil, s.failVerification(ctx, u)
	}
	if u.CodeExpiresAt == nil || !s.now().Before(*u.CodeExpiresAt) {
		return nil, ErrCodeExpired
	}
	u.EmailVerified = true
	u.CodeUsed = true
	u.VerificationCode = ""
	u.CodeAttempts = 0
	if err := s.users.UpdateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	s.logger.Info("e-mail verified", zap.Int64("user_id", u.ID))
	return u, nil
}

// failVerification counts a wrong code and drops the code once the limit is reached.
func (s *Service) failVerification(ctx context.Context, u *models.User) error {
	u.CodeAttempts++
	locked := u.CodeAttempts >= MaxCodeAttempts
	if locked {
		u.VerificationCode = ""
	}
	if err := s.users.UpdateUser(ctx, u); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if locked {
		s.logger.Warn("verification code invalidated", zap.Int64("user_id", u.ID), zap.Int("attempts", u.CodeAttempts))
		return ErrTooManyAttempts
	}
	return ErrInvalidCode
}

// ResendCode issues a fresh verification code, replacing the previous one.
func (s *Service) ResendCode(ctx context.Context, email string) error {
	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if u.EmailVerified {
		return ErrAlreadyVerified
	}
	code, err := newCode()
	if err != nil {
		return err
	}
	expires := s.now().Add(s.opts.CodeTTL)
	u.VerificationCode = code
	u.CodeExpiresAt = &expires
	u.CodeUsed = false
	u.CodeAttempts = 0
	if err := s.users.UpdateUser(ctx, u); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if err := s.mailer.SendVerificationCode(ctx, u.Email, code); err != nil {
		return fmt.Errorf("send verification code: %w", err)
	}
	return nil
}

// newCode returns a zero-padded random numeric code.
func newCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < codeDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
