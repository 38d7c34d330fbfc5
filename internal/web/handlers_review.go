package web

import (
	"net/http"

	"github.com/JonMunkholm/personimport/internal/core"
	"github.com/JonMunkholm/personimport/internal/logging"
)

type mappingResponse struct {
	Headers []string     `json:"headers"`
	Mapping core.Mapping `json:"mapping"`
	Missing []string     `json:"missing"`
	Phase   core.Phase   `json:"phase"`
}

func mappingOf(sess *core.Session) mappingResponse {
	v := sess.View()
	missing := make([]string, len(v.Missing))
	for i, k := range v.Missing {
		missing[i] = string(k)
	}
	return mappingResponse{Headers: v.Headers, Mapping: v.Mapping, Missing: missing, Phase: v.Phase}
}

func (s *Server) handleGetMapping(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mappingOf(sess))
}

// handleSetMapping replaces the mapping. Body: {"mapping": {"<field>": "<header>"}}.
func (s *Server) handleSetMapping(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var req struct {
		Mapping core.Mapping `json:"mapping"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := sess.SetMapping(req.Mapping); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mappingOf(sess))
}

// handleConfirmMapping normalizes every row and moves to review.
func (s *Server) handleConfirmMapping(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := sess.ConfirmMapping(); err != nil {
		s.respondError(w, r, err)
		return
	}

	view := sess.View()
	logging.FromContext(requestContext(r, sess.ID)).Info("mapping confirmed",
		"rows", view.Summary.Total,
		"derived", view.Summary.Derived,
		"blocking_groups", view.Summary.BlockingGroups,
	)
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleReturnToMap(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := sess.ReturnToMap(); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mappingOf(sess))
}

// handleListRows returns the working rows. ?view=issues|excluded|included
// narrows the list.
func (s *Server) handleListRows(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	rows := sess.Rows()
	filter := r.URL.Query().Get("view")
	if filter == "" {
		writeJSON(w, http.StatusOK, rows)
		return
	}

	out := make([]core.WorkingRow, 0, len(rows))
	for _, row := range rows {
		switch filter {
		case "issues":
			if len(row.Issues) == 0 {
				continue
			}
		case "excluded":
			if !row.Excluded {
				continue
			}
		case "included":
			if row.Excluded {
				continue
			}
		default:
			s.respondError(w, r, badRequest("view must be issues, excluded or included"))
			return
		}
		out = append(out, row)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRow(w http.ResponseWriter, r *http.Request) {
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
	row, err := sess.Row(n)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// handleEditRow replaces the person fields of a row. The body is an import
// row; its rowNumber is ignored.
func (s *Server) handleEditRow(w http.ResponseWriter, r *http.Request) {
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

	var edit core.ImportRow
	if err := decodeJSON(w, r, &edit); err != nil {
		s.respondError(w, r, err)
		return
	}

	row, err := sess.EditRow(n, edit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// handleSetExcluded toggles exclusion. Body: {"excluded": true}.
func (s *Server) handleSetExcluded(w http.ResponseWriter, r *http.Request) {
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
		Excluded *bool `json:"excluded"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.Excluded == nil {
		s.respondError(w, r, badRequest("excluded is required"))
		return
	}

	if err := sess.SetExcluded(n, *req.Excluded); err != nil {
		s.respondError(w, r, err)
		return
	}
	row, err := sess.Row(n)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// handleAutoExclude keeps the first row of each blocking duplicate group.
func (s *Server) handleAutoExclude(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	n, err := sess.AutoExclude()
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(requestContext(r, sess.ID)).Info("auto-excluded duplicates", "rows_excluded", n)
	writeJSON(w, http.StatusOK, map[string]any{
		"excluded": n,
		"summary":  sess.Summary(),
	})
}

func (s *Server) handleDuplicates(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	groups := sess.DuplicateGroups()
	if groups == nil {
		groups = []core.DuplicateGroup{}
	}
	writeJSON(w, http.StatusOK, groups)
}
