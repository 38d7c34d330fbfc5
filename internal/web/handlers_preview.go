package web

import (
	"net/http"

	"github.com/JonMunkholm/personimport/internal/core"
	"github.com/JonMunkholm/personimport/internal/logging"
	"github.com/JonMunkholm/personimport/internal/web/views"
)

// handlePreview sends the included rows to the backend preview.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	decisions, err := s.service.RunPreview(requestContext(r, sess.ID), sess.ID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.writeDecisions(w, r, decisions)
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.writeDecisions(w, r, sess.Decisions())
}

func (s *Server) writeDecisions(w http.ResponseWriter, r *http.Request, list []core.RowDecision) {
	if list == nil {
		list = []core.RowDecision{}
	}
	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := views.Decisions(list).Render(r.Context(), w); err != nil {
			logging.FromContext(r.Context()).Error("render decisions", "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleSetAction overrides the action of a previewed row.
// Body: {"action": "create|update|skip", "personId": "..."}.
func (s *Server) handleSetAction(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	n, err := rowParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var req struct {
		Action   core.Action `json:"action"`
		PersonID string      `json:"personId"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	d, err := sess.SetAction(n, req.Action, req.PersonID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleReturnToReview drops the preview so rows can be edited again.
func (s *Server) handleReturnToReview(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := sess.ReturnToReview(); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

// handleConfirm commits the previewed rows with their actions.
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	result, err := s.service.Confirm(requestContext(r, sess.ID), sess.ID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
