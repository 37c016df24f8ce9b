package server

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/mindhub/mindlink/internal/editor"
	"github.com/mindhub/mindlink/internal/models"
	"github.com/mindhub/mindlink/internal/storage"
)

const defaultEditPageSize = 50

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"user":     u,
		"can_edit": s.Editor.Allowed(u.Role),
	})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var q models.Question
	if !s.decode(w, r, &q) {
		return
	}
	if err := q.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := r.Context()
	if err := s.Knowledge.Ensure(ctx); err != nil {
		s.fail(w, "knowledge base unavailable", err)
		return
	}
	u := userFrom(ctx)
	s.logger.Debug("ask request", zap.Int64("user_id", u.ID), zap.Int("length", len(q.Message)))
	ans, err := s.Assistant.Ask(ctx, tokenFrom(ctx), q.Message)
	if err != nil {
		s.fail(w, "ask failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, ans)
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	var in models.EditInput
	if !s.decode(w, r, &in) {
		return
	}
	if err := in.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	u := userFrom(r.Context())
	out, err := s.Editor.Apply(r.Context(), editor.Request{
		FileID:      in.FileID,
		FileName:    in.FileName,
		Instruction: in.Text,
		User:        u.Email,
		Role:        u.Role,
	})
	if err != nil {
		s.fail(w, "edit failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"outcome": out,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	s.logger.Info("forced refresh requested", zap.String("user", u.Email))
	stats, err := s.Knowledge.ForceRefresh(r.Context())
	if err != nil {
		s.fail(w, "refresh failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"status": "refreshed", "stats": stats})
}

func (s *Server) handleRefreshStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]bool{"refreshing": s.Knowledge.Refreshing()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.Knowledge.Status(r.Context())
	if err != nil {
		s.fail(w, "status failed", err)
		return
	}
	resp := map[string]interface{}{
		"index":    st,
		"sessions": s.Assistant.Sessions(),
	}
	configInfo := map[string]interface{}{
		"drive_provider":     s.config.Drive.Provider,
		"embedding_provider": s.config.Embedding.Provider,
		"llm_provider":       s.config.LLM.Provider,
		"llm_model":          s.config.LLM.Model,
		"vector_backend":     s.config.Vector.Backend,
		"chunk_size":         s.config.Retrieval.ChunkSize,
		"chunk_overlap":      s.config.Retrieval.ChunkOverlap,
		"top_k":              s.config.Retrieval.TopK,
		"edits_enabled":      s.config.Edit.EnabledOrDefault(),
	}
	diskBytes, err := storage.Footprint(
		s.config.Storage.DatabasePath,
		s.config.Storage.BleveIndexPath,
		s.config.Storage.VectorIndexPath,
	)
	if err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	resp["config"] = configInfo
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAdminEdits(w http.ResponseWriter, r *http.Request) {
	offset, limit := pageParams(r, defaultEditPageSize)
	edits, err := s.Edits.ListEdits(r.Context(), offset, limit)
	if err != nil {
		s.fail(w, "list edits failed", err)
		return
	}
	if edits == nil {
		edits = []*models.EditRecord{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"edits": edits, "offset": offset, "limit": limit})
}

// pageParams reads offset and limit query parameters, capping limit at 500.
func pageParams(r *http.Request, defaultLimit int) (int, int) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > 500 {
		limit = 500
	}
	return offset, limit
}
