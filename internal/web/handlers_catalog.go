package web

import (
	"bytes"
	"net/http"

	"github.com/JonMunkholm/personimport/internal/tabular"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Catalog().Fields())
}

// handleTemplateCSV serves an empty file with one column per catalog field.
func (s *Server) handleTemplateCSV(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := tabular.WriteCSVTemplate(&buf, s.service.Catalog().Labels()); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="people_import_template.csv"`)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleTemplateXLSX(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := tabular.WriteXLSXTemplate(&buf, s.service.Catalog().Labels()); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="people_import_template.xlsx"`)
	_, _ = w.Write(buf.Bytes())
}
