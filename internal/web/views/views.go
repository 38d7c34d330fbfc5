// Package views holds the HTML fragments served to HTMX clients.
//
// Components are written in views.templ; run `templ generate` after editing
// it to refresh views_templ.go.
package views

import (
	"strings"

	"github.com/JonMunkholm/personimport/internal/catalog"
	"github.com/JonMunkholm/personimport/internal/core"
)

func missingFields(keys []catalog.FieldKey) string {
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

// rowNotes lists the backend warnings of a row, then its errors.
func rowNotes(d core.RowDecision) []string {
	notes := make([]string, 0, len(d.Preview.Warnings)+len(d.Preview.Errors))
	notes = append(notes, d.Preview.Warnings...)
	return append(notes, d.Preview.Errors...)
}
