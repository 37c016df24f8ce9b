package auth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mindhub/mindlink/internal/models"
	"github.com/mindhub/mindlink/internal/storage"
)

// TestAccount is a fixed login used for demos and manual testing.
type TestAccount struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      models.Role
}

// TestAccounts are the accounts created by SeedTestAccounts.
var TestAccounts = []TestAccount{
	{Email: "admin@mindhub.com", Password: "admin123", FirstName: "Administrador", Role: models.RoleAdmin},
	{Email: "monitor@mindhub.com", Password: "monitor123", FirstName: "Monitor", LastName: "Teste", Role: models.RoleMonitor},
	{Email: "aluno1@mindhub.com", Password: "aluno123", FirstName: "Maria", LastName: "Silva", Role: models.RoleStudent},
	{Email: "aluno2@mindhub.com", Password: "aluno123", FirstName: "João", LastName: "Santos", Role: models.RoleStudent},
	{Email: "aluno3@mindhub.com", Password: "aluno123", FirstName: "Ana", LastName: "Costa", Role: models.RoleStudent},
	{Email: "aluno4@mindhub.com", Password: "aluno123", FirstName: "Pedro", LastName: "Oliveira", Role: models.RoleStudent},
	{Email: "aluno5@mindhub.com", Password: "aluno123", FirstName: "Carla", LastName: "Lima", Role: models.RoleStudent},
}

// SeedResult reports what happened to one test account.
type SeedResult struct {
	Email   string      `json:"email"`
	Role    models.Role `json:"role"`
	Created bool        `json:"created"`
}

// SeedTestAccounts creates the test accounts, or refreshes name, role and active flag of the ones
// that exist. Existing passwords are only reset when resetPasswords is set.
func (s *Service) SeedTestAccounts(ctx context.Context, resetPasswords bool) ([]SeedResult, error) {
	results := make([]SeedResult, 0, len(TestAccounts))
	for _, acc := range TestAccounts {
		u, err := s.users.GetUserByEmail(ctx, acc.Email)
		created := false
		switch {
		case errors.Is(err, storage.ErrNotFound):
			u = &models.User{Email: acc.Email, CreatedAt: s.now()}
			created = true
		case err != nil:
			return results, fmt.Errorf("get %s: %w", acc.Email, err)
		}

		u.FirstName = acc.FirstName
		u.LastName = acc.LastName
		u.Role = acc.Role
		u.Active = true
		u.EmailVerified = true
		if created || resetPasswords {
			hash, err := s.hash(acc.Password)
			if err != nil {
				return results, err
			}
			u.PasswordHash = hash
		}

		if created {
			err = s.users.CreateUser(ctx, u)
		} else {
			err = s.users.UpdateUser(ctx, u)
		}
		if err != nil {
			return results, fmt.Errorf("save %s: %w", acc.Email, err)
		}
		s.logger.Info("test account ready", zap.String("email", u.Email), zap.String("role", string(u.Role)), zap.Bool("created", created))
		results = append(results, SeedResult{Email: u.Email, Role: u.Role, Created: created})
	}
	return results, nil
}
