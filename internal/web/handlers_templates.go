package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/personimport/internal/core"
	"github.com/JonMunkholm/personimport/internal/logging"
)

type templateRequest struct {
	Name    string       `json:"name"`
	Headers []string     `json:"headers"`
	Mapping core.Mapping `json:"mapping"`
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := s.service.ListTemplates(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if list == nil {
		list = []core.MappingTemplate{}
	}
	writeJSON(w, http.StatusOK, list)
}

// handleMatchTemplates scores saved templates against a header list.
// Body: {"headers": ["Name", "Email"]}.
func (s *Server) handleMatchTemplates(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Headers []string `json:"headers"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if len(req.Headers) == 0 {
		s.respondError(w, r, badRequest("headers are required"))
		return
	}

	matches, err := s.service.MatchTemplates(r.Context(), req.Headers)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if matches == nil {
		matches = []core.TemplateMatch{}
	}
	writeJSON(w, http.StatusOK, matches)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.service.GetTemplate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	t, err := s.service.CreateTemplate(r.Context(), req.Name, req.Headers, req.Mapping)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Info("mapping template created", "template_id", t.ID, "name", t.Name)
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	t, err := s.service.UpdateTemplate(r.Context(), chi.URLParam(r, "id"), req.Name, req.Headers, req.Mapping)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.service.DeleteTemplate(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Info("mapping template deleted", "template_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleSaveSessionTemplate saves the session's current mapping under a
// name. Body: {"name": "..."}.
func (s *Server) handleSaveSessionTemplate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	id := chi.URLParam(r, "sessionID")
	t, err := s.service.SaveSessionTemplate(r.Context(), id, req.Name)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	logging.FromContext(requestContext(r, id)).Info("session mapping saved as template", "template_id", t.ID)
	writeJSON(w, http.StatusCreated, t)
}
