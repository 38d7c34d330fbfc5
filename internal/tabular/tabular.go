// Package tabular decodes uploaded delimited-text and spreadsheet files into
// an ordered header list plus string-keyed rows.
//
// This is the only place the untyped row shape is produced. Callers convert
// rows to typed records immediately after reading them.
package tabular

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	// ErrUnsupportedFormat is returned for files that are neither delimited
	// text nor an XLSX workbook.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrEmptyFile is returned when there is nothing to read.
	ErrEmptyFile = errors.New("empty file")

	// ErrNoHeaders is returned when the first row holds no header text.
	ErrNoHeaders = errors.New("no headers found")
)

// Format identifies how a file was decoded.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// RawRow is one source line keyed by header text.
type RawRow map[string]string

// Table is a decoded file.
type Table struct {
	Headers  []string `json:"headers"`
	Rows     []RawRow `json:"rows"`
	Format   Format   `json:"format"`
	Encoding string   `json:"encoding,omitempty"`
	Sheet    string   `json:"sheet,omitempty"`
}

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Decode sniffs data and decodes it as XLSX or delimited text. name is only
// used as a hint when content sniffing is inconclusive.
func Decode(name string, data []byte) (*Table, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	switch DetectFormat(name, data) {
	case FormatXLSX:
		return decodeXLSX(data)
	case FormatCSV:
		return decodeCSV(data)
	default:
		mime := mimetype.Detect(data)
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mime.String())
	}
}

// DetectFormat returns the format Decode would use, or "" when the file is
// not supported.
func DetectFormat(name string, data []byte) Format {
	mime := mimetype.Detect(data)
	if mime.Is(xlsxMIME) {
		return FormatXLSX
	}
	for m := mime; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return FormatCSV
		}
	}

	// UTF-16 or Latin-1 exports are not always recognised as text.
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx":
		if mime.Is("application/zip") {
			return FormatXLSX
		}
	case ".csv", ".tsv", ".txt":
		if mime.Is("application/octet-stream") {
			return FormatCSV
		}
	}
	return ""
}

// build turns raw records (header first) into a Table. Header cells are
// cleaned and made unique; rows are padded or truncated to the header width
// and blank rows are dropped.
func build(records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, ErrEmptyFile
	}

	headers := uniqueHeaders(records[0])
	if headers == nil {
		return nil, ErrNoHeaders
	}

	rows := make([]RawRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		if isEmptyRow(rec) {
			continue
		}
		row := make(RawRow, len(headers))
		for i, h := range headers {
			if i < len(rec) {
				row[h] = CleanCell(rec[i])
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}

	return &Table{Headers: headers, Rows: rows}, nil
}

// uniqueHeaders cleans header cells, names blank columns and suffixes
// repeated names. Returns nil when every header cell is blank.
func uniqueHeaders(raw []string) []string {
	// Trailing blank columns are common in spreadsheet exports.
	end := len(raw)
	for end > 0 && CleanCell(raw[end-1]) == "" {
		end--
	}
	if end == 0 {
		return nil
	}

	headers := make([]string, end)
	seen := make(map[string]int, end)
	for i := 0; i < end; i++ {
		h := CleanCell(raw[i])
		if h == "" {
			h = fmt.Sprintf("Column %d", i+1)
		}
		key := strings.ToLower(h)
		seen[key]++
		if n := seen[key]; n > 1 {
			h = fmt.Sprintf("%s (%d)", h, n)
		}
		headers[i] = h
	}
	return headers
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// CleanCell removes common spreadsheet artifacts from a cell value:
// surrounding whitespace, a byte order mark and the Excel text-formula
// wrapper (="...").
func CleanCell(s string) string {
	s = strings.TrimPrefix(s, "\uFEFF")
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") && len(s) >= 3 {
		s = strings.TrimSpace(s[2 : len(s)-1])
	}

	return s
}
