package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mindhub/mindlink/internal/auth"
	"github.com/mindhub/mindlink/internal/models"
)

type ctxKey int

const (
	userKey ctxKey = iota
	tokenKey
)

// sessionToken reads the session cookie, or a bearer token for API clients.
func (s *Server) sessionToken(r *http.Request) string {
	if c, err := r.Cookie(s.config.Auth.CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// authenticate rejects requests without a valid session and stores the user in the context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := s.sessionToken(r)
		u, err := s.Auth.SessionUser(r.Context(), token)
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidSession) {
				s.logger.Error("session lookup failed", zap.Error(err))
			}
			s.respondError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		ctx := context.WithValue(r.Context(), userKey, u)
		ctx = context.WithValue(ctx, tokenKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole lets through only users with one of roles. It runs after authenticate.
func requireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := userFrom(r.Context())
			if u != nil {
				for _, role := range roles {
					if u.Role == role {
						next.ServeHTTP(w, r)
						return
					}
				}
			}
			respondJSON(w, http.StatusForbidden, map[string]string{"error": "access denied"})
		})
	}
}

func userFrom(ctx context.Context) *models.User {
	u, _ := ctx.Value(userKey).(*models.User)
	return u
}

func tokenFrom(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey).(string)
	return t
}
