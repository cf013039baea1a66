package api

import (
	"errors"
	"net/http"

	"vip/internal/runs"
)

// handleListRuns handles GET /runs
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		NotFound(w, "Run history is disabled")
		return
	}

	query := r.URL.Query()
	opts := runs.ListOptions{
		Kind:   query.Get("kind"),
		Status: runs.Status(query.Get("status")),
		Limit:  QueryParamInt(r, "limit", 20),
		Offset: QueryParamInt(r, "offset", 0),
	}

	resp, err := s.runs.List(opts)
	if err != nil {
		s.logger.Error("Failed to list runs", "error", err.Error())
		InternalError(w, "Failed to list runs", err)
		return
	}

	WriteJSON(w, resp, http.StatusOK)
}

// handleGetRun handles GET /runs/{id}
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		NotFound(w, "Run history is disabled")
		return
	}

	id := r.PathValue("id")
	run, err := s.runs.Get(id)
	if err != nil {
		if errors.Is(err, runs.ErrNotFound) {
			NotFound(w, "Run not found: "+id)
			return
		}
		s.logger.Error("Failed to get run", "id", id, "error", err.Error())
		InternalError(w, "Failed to get run", err)
		return
	}

	WriteJSON(w, run, http.StatusOK)
}
