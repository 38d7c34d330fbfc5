package web

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/personimport/internal/core"
	"github.com/JonMunkholm/personimport/internal/logging"
	"github.com/JonMunkholm/personimport/internal/web/views"
)

// handleCreateSession decodes an uploaded file and opens a session in the
// map phase. The file is read whole; the size cap keeps that bounded.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var tooLarge *http.MaxBytesError
		if !errors.As(err, &tooLarge) {
			err = &badRequestError{msg: "invalid upload form", err: err}
		}
		s.respondError(w, r, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, badRequest("no file provided"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx := requestContext(r, "")
	sess, err := s.service.CreateSession(ctx, header.Filename, data)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.WithFields(ctx, "session_id", sess.ID).Info("session created",
		"file", header.Filename,
		"bytes", len(data),
		"rows", sess.RawRowCount(),
	)
	writeJSON(w, http.StatusCreated, sess.View())
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Sessions())
}

// session resolves the {sessionID} route parameter.
func (s *Server) session(r *http.Request) (*core.Session, error) {
	return s.service.Session(chi.URLParam(r, "sessionID"))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

// handleSessionSummary serves the summary card; HTMX clients get HTML.
func (s *Server) handleSessionSummary(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	view := sess.View()
	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := views.SessionSummary(view).Render(r.Context(), w); err != nil {
			logging.FromContext(r.Context()).Error("render summary", "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, view.Summary)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := s.service.CloseSession(id); err != nil {
		s.respondError(w, r, err)
		return
	}
	logging.FromContext(requestContext(r, id)).Info("session closed")
	w.WriteHeader(http.StatusNoContent)
}

// rowParam parses the {row} route parameter.
func rowParam(r *http.Request) (int, error) {
	n, err := strconv.Atoi(chi.URLParam(r, "row"))
	if err != nil || n < 1 {
		return 0, badRequest("row must be a positive number")
	}
	return n, nil
}
