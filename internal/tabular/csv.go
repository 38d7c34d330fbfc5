package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

var candidateDelimiters = []rune{',', ';', '\t', '|'}

func decodeCSV(data []byte) (*Table, error) {
	text, enc, err := toUTF8(data)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(text)) == 0 {
		return nil, ErrEmptyFile
	}

	records, err := parseDelimited(text, sniffDelimiter(text))
	if err != nil {
		return nil, err
	}

	t, err := build(records)
	if err != nil {
		return nil, err
	}
	t.Format = FormatCSV
	t.Encoding = enc
	return t, nil
}

func parseDelimited(text []byte, delim rune) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(text))
	r.Comma = delim
	r.FieldsPerRecord = -1 // ragged rows are padded later
	r.LazyQuotes = true

	var records [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse delimited text: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// sniffDelimiter picks the candidate that occurs most often outside quotes on
// the first line. Ties keep the earlier candidate, so comma wins by default.
func sniffDelimiter(text []byte) rune {
	line := firstLine(text)

	counts := make(map[rune]int, len(candidateDelimiters))
	inQuotes := false
	for _, r := range string(line) {
		if r == '"' {
			inQuotes = !inQuotes
			continue
		}
		if !inQuotes {
			counts[r]++
		}
	}

	best := candidateDelimiters[0]
	for _, d := range candidateDelimiters[1:] {
		if counts[d] > counts[best] {
			best = d
		}
	}
	return best
}

func firstLine(text []byte) []byte {
	if i := bytes.IndexAny(text, "\r\n"); i >= 0 {
		return text[:i]
	}
	return text
}
