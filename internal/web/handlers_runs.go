package web

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/personimport/internal/core"
)

// maxRunListLimit caps the ?limit parameter.
const maxRunListLimit = 500

// handleListRuns returns recent confirmed imports. ?limit=N, default 50.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := core.DefaultRunListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.respondError(w, r, badRequest("limit must be a positive number"))
			return
		}
		limit = min(n, maxRunListLimit)
	}

	runs, err := s.service.ListRuns(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if runs == nil {
		runs = []core.ImportRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.service.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}
