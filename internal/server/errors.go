package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mindhub/mindlink/internal/assistant"
	"github.com/mindhub/mindlink/internal/auth"
	"github.com/mindhub/mindlink/internal/command"
	"github.com/mindhub/mindlink/internal/editor"
	"github.com/mindhub/mindlink/internal/indexer"
	"github.com/mindhub/mindlink/internal/knowledge"
	"github.com/mindhub/mindlink/internal/mutate"
	"github.com/mindhub/mindlink/internal/progress"
	"github.com/mindhub/mindlink/internal/storage"
)

var statusByError = []struct {
	err    error
	status int
}{
	{auth.ErrInvalidCredentials, http.StatusUnauthorized},
	{auth.ErrInvalidSession, http.StatusUnauthorized},
	{auth.ErrInactive, http.StatusForbidden},
	{auth.ErrUnverified, http.StatusForbidden},
	{auth.ErrEmailTaken, http.StatusConflict},
	{auth.ErrInvalidEmail, http.StatusBadRequest},
	{auth.ErrWeakPassword, http.StatusBadRequest},
	{auth.ErrInvalidCode, http.StatusBadRequest},
	{auth.ErrCodeExpired, http.StatusBadRequest},
	{auth.ErrTooManyAttempts, http.StatusTooManyRequests},
	{auth.ErrAlreadyVerified, http.StatusBadRequest},
	{auth.ErrInvalidRole, http.StatusBadRequest},

	{assistant.ErrEmptyQuestion, http.StatusBadRequest},

	{editor.ErrDisabled, http.StatusForbidden},
	{editor.ErrForbidden, http.StatusForbidden},
	{editor.ErrFileNotFound, http.StatusNotFound},
	{editor.ErrAmbiguousFile, http.StatusConflict},
	{mutate.ErrNoMatch, http.StatusUnprocessableEntity},
	{mutate.ErrUnsupported, http.StatusUnsupportedMediaType},
	{command.ErrNoCommand, http.StatusBadRequest},
	{command.ErrNoSuggestion, http.StatusBadRequest},
	{command.ErrInvalidCommand, http.StatusBadRequest},

	{progress.ErrNotStudent, http.StatusNotFound},
	{progress.ErrInvalidScore, http.StatusBadRequest},
	{progress.ErrAlreadyValidated, http.StatusBadRequest},
	{progress.ErrFeedbackRequired, http.StatusBadRequest},
	{progress.ErrNoPhone, http.StatusBadRequest},
	{progress.ErrEmptySubmission, http.StatusBadRequest},
	{progress.ErrStepInactive, http.StatusBadRequest},
	{progress.ErrInvalidWorld, http.StatusBadRequest},
	{progress.ErrInvalidStep, http.StatusBadRequest},
	{progress.ErrStepCompleted, http.StatusConflict},
	{progress.ErrAlreadyPending, http.StatusConflict},

	{indexer.ErrNoDocuments, http.StatusServiceUnavailable},
	{knowledge.ErrClosed, http.StatusServiceUnavailable},

	{storage.ErrNotFound, http.StatusNotFound},
	{storage.ErrDuplicate, http.StatusConflict},
	{context.DeadlineExceeded, http.StatusGatewayTimeout},
}

// statusFor maps a service error to an HTTP status.
func statusFor(err error) int {
	var syntax *command.SyntaxError
	if errors.As(err, &syntax) {
		return http.StatusBadRequest
	}
	for _, e := range statusByError {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// fail responds with the status mapped from err. Server errors are logged and not echoed.
func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.logger.Error(msg, zap.Error(err))
		s.respondError(w, status, "internal error")
		return
	}
	s.logger.Debug(msg, zap.Int("status", status), zap.Error(err))
	s.respondError(w, status, err.Error())
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	respondJSON(w, status, data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// decode reads a JSON body into v.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
