package server

import (
	"net/http"

	"github.com/mindhub/mindlink/internal/models"
	"github.com/mindhub/mindlink/internal/progress"
)

func (s *Server) handleMonitorStudents(w http.ResponseWriter, r *http.Request) {
	list, err := s.Progress.ListStudents(r.Context())
	if err != nil {
		s.fail(w, "list students failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleMonitorStudent(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idParam(w, r)
	if !ok {
		return
	}
	d, err := s.Progress.StudentDetail(r.Context(), id)
	if err != nil {
		s.fail(w, "student detail failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, d)
}

type scoreRequest struct {
	Score *int   `json:"score"`
	Note  string `json:"note"`
}

func (s *Server) handleMonitorScore(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idParam(w, r)
	if !ok {
		return
	}
	var req scoreRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Score == nil {
		s.respondError(w, http.StatusBadRequest, "score is required")
		return
	}
	h, err := s.Progress.SetScore(r.Context(), userFrom(r.Context()), id, *req.Score, req.Note)
	if err != nil {
		s.fail(w, "set score failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"score":   h,
		"color":   models.LevelFor(h.Score).Color,
	})
}

type alertRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleMonitorAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idParam(w, r)
	if !ok {
		return
	}
	var req alertRequest
	if r.ContentLength != 0 && !s.decode(w, r, &req) {
		return
	}
	res, err := s.Progress.Alert(r.Context(), id, req.Message)
	if err != nil {
		s.fail(w, "alert failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "alert": res})
}

func (s *Server) handleMonitorPending(w http.ResponseWriter, r *http.Request) {
	subs, err := s.Progress.PendingSubmissions(r.Context())
	if err != nil {
		s.fail(w, "list pending submissions failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"submissions": subs, "total": len(subs)})
}

type validateRequest struct {
	Approved *bool  `json:"approved"`
	Feedback string `json:"feedback"`
}

func (s *Server) handleMonitorValidate(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idParam(w, r)
	if !ok {
		return
	}
	var req validateRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Approved == nil {
		s.respondError(w, http.StatusBadRequest, "approved is required")
		return
	}
	v, err := s.Progress.Validate(r.Context(), userFrom(r.Context()), id, *req.Approved, req.Feedback)
	if err != nil {
		s.fail(w, "validate submission failed", err)
		return
	}
	msg := "submission approved"
	if !*req.Approved {
		msg = "submission rejected"
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"message":     msg,
		"submission":  v.Submission,
		"step_status": v.StepStatus,
	})
}

func (s *Server) handleMonitorStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.Progress.Stats(r.Context())
	if err != nil {
		s.fail(w, "stats failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleTrailProgress(w http.ResponseWriter, r *http.Request) {
	view, err := s.Progress.StudentTrail(r.Context(), userFrom(r.Context()))
	if err != nil {
		s.fail(w, "trail progress failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleTrailSubmit(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idParam(w, r)
	if !ok {
		return
	}
	var in progress.SubmissionInput
	if !s.decode(w, r, &in) {
		return
	}
	sub, err := s.Progress.Submit(r.Context(), userFrom(r.Context()), id, in)
	if err != nil {
		s.fail(w, "submit failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleAdminCreateWorld(w http.ResponseWriter, r *http.Request) {
	world := models.World{Active: true}
	if !s.decode(w, r, &world) {
		return
	}
	world.ID = 0
	if err := s.Progress.CreateWorld(r.Context(), &world); err != nil {
		s.fail(w, "create world failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, world)
}

func (s *Server) handleAdminCreateStep(w http.ResponseWriter, r *http.Request) {
	step := models.Step{Active: true}
	if !s.decode(w, r, &step) {
		return
	}
	step.ID = 0
	if err := s.Progress.CreateStep(r.Context(), &step); err != nil {
		s.fail(w, "create step failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, step)
}

type inactivityRequest struct {
	Days   int  `json:"days"`
	Score  int  `json:"score"`
	DryRun bool `json:"dry_run"`
}

func (s *Server) handleAdminInactivity(w http.ResponseWriter, r *http.Request) {
	req := inactivityRequest{Days: s.config.Progress.InactivityDays, Score: s.config.Progress.InactivityScore}
	if r.ContentLength != 0 && !s.decode(w, r, &req) {
		return
	}
	report, err := s.Progress.CheckInactivity(r.Context(), req.Days, req.Score, req.DryRun)
	if err != nil {
		s.fail(w, "inactivity check failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}
