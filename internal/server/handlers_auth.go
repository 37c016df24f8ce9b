package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mindhub/mindlink/internal/auth"
	"github.com/mindhub/mindlink/internal/models"
	"github.com/mindhub/mindlink/internal/storage"
)

// loginRequest accepts "senha" for clients of the legacy login form.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Senha    string `json:"senha"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}
	password := req.Password
	if password == "" {
		password = req.Senha
	}
	u, sess, err := s.Auth.Login(r.Context(), req.Email, password)
	if err != nil {
		s.fail(w, "login failed", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.Auth.CookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   s.config.Auth.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "sucesso",
		"role":   u.Role,
		"token":  sess.Token,
		"user":   u,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := s.sessionToken(r)
	if err := s.Auth.Logout(r.Context(), token); err != nil {
		s.fail(w, "logout failed", err)
		return
	}
	if token != "" {
		s.Assistant.Reset(token)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.Auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.config.Auth.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "sucesso"})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in auth.SignupInput
	if !s.decode(w, r, &in) {
		return
	}
	u, err := s.Auth.Signup(r.Context(), in)
	if err != nil && u == nil {
		s.fail(w, "signup failed", err)
		return
	}
	resp := map[string]interface{}{"status": "pending_verification", "user": u}
	if err != nil {
		s.logger.Warn("verification code not delivered", zap.String("email", u.Email), zap.Error(err))
		resp["warning"] = "verification code could not be sent; request a new one"
	}
	s.respondJSON(w, http.StatusCreated, resp)
}

type verifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !s.decode(w, r, &req) {
		return
	}
	u, err := s.Auth.VerifyEmail(r.Context(), req.Email, req.Code)
	if err != nil {
		s.fail(w, "verify e-mail failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"status": "verified", "user": u})
}

func (s *Server) handleResendCode(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !s.decode(w, r, &req) {
		return
	}
	err := s.Auth.ResendCode(r.Context(), req.Email)
	if errors.Is(err, storage.ErrNotFound) {
		// Unknown addresses get the same answer as known ones.
		err = nil
	}
	if err != nil {
		s.fail(w, "resend code failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.Auth.ListUsers(r.Context(), models.Role(r.URL.Query().Get("role")))
	if err != nil {
		s.fail(w, "list users failed", err)
		return
	}
	if users == nil {
		users = []*models.User{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"users": users, "total": len(users)})
}

func (s *Server) handleAdminUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idParam(w, r)
	if !ok {
		return
	}
	var upd models.UserUpdate
	if !s.decode(w, r, &upd) {
		return
	}
	if self := userFrom(r.Context()); self.ID == id && upd.Active != nil && !*upd.Active {
		s.respondError(w, http.StatusBadRequest, "cannot deactivate your own account")
		return
	}
	u, err := s.Auth.UpdateUser(r.Context(), id, upd)
	if err != nil {
		s.fail(w, "update user failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, u)
}

// idParam parses the {id} path parameter.
func (s *Server) idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.respondError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}
