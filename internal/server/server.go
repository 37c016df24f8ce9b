// Package server provides the HTTP API for MindLink.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/mindhub/mindlink/internal/assistant"
	"github.com/mindhub/mindlink/internal/auth"
	"github.com/mindhub/mindlink/internal/config"
	"github.com/mindhub/mindlink/internal/editor"
	"github.com/mindhub/mindlink/internal/knowledge"
	"github.com/mindhub/mindlink/internal/models"
	"github.com/mindhub/mindlink/internal/progress"
	"github.com/mindhub/mindlink/internal/storage"
)

// Deps are the services the HTTP API exposes.
type Deps struct {
	Auth      *auth.Service
	Assistant *assistant.Assistant
	Editor    *editor.Editor
	Knowledge *knowledge.Manager
	Progress  *progress.Service
	Edits     storage.EditLog
}

// Server is the HTTP server for the MindLink API.
type Server struct {
	Deps
	config *config.Config
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(deps Deps, cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		Deps:   deps,
		config: cfg,
		logger: logger,
	}
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if s.config.Server.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.config.Server.RequestTimeout))
	}
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Post("/login", s.handleLogin)
	r.Post("/logout", s.handleLogout)
	r.Post("/signup", s.handleSignup)
	r.Post("/verify-email", s.handleVerifyEmail)
	r.Post("/resend-code", s.handleResendCode)
	r.Get("/refresh/status", s.handleRefreshStatus)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/me", s.handleMe)
		r.Post("/ask", s.handleAsk)
		r.Post("/edit", s.handleEdit)
		r.Get("/api/v1/status", s.handleStatus)
		r.With(requireRole(models.RoleAdmin, models.RoleMonitor)).Post("/refresh", s.handleRefresh)

		r.Route("/api/monitor", func(r chi.Router) {
			r.Use(requireRole(models.RoleAdmin, models.RoleMonitor))
			r.Get("/students", s.handleMonitorStudents)
			r.Get("/students/{id}", s.handleMonitorStudent)
			r.Post("/students/{id}/score", s.handleMonitorScore)
			r.Post("/students/{id}/alert", s.handleMonitorAlert)
			r.Get("/submissions/pending", s.handleMonitorPending)
			r.Post("/submissions/{id}/validate", s.handleMonitorValidate)
			r.Get("/stats", s.handleMonitorStats)
		})

		r.Route("/api/trilha", func(r chi.Router) {
			r.Use(requireRole(models.RoleStudent))
			r.Get("/progress", s.handleTrailProgress)
			r.Post("/steps/{id}/submissions", s.handleTrailSubmit)
		})

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(requireRole(models.RoleAdmin))
			r.Get("/users", s.handleAdminUsers)
			r.Patch("/users/{id}", s.handleAdminUpdateUser)
			r.Get("/edits", s.handleAdminEdits)
			r.Post("/worlds", s.handleAdminCreateWorld)
			r.Post("/steps", s.handleAdminCreateStep)
			r.Post("/inactivity", s.handleAdminInactivity)
		})
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
