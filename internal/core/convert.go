package core

// convert.go parses the scalar cell types of a person record.
//
// Parsers return ok=false for non-empty input they cannot interpret, so the
// caller can attach an advisory instead of silently dropping the value.

import (
	"regexp"
	"strconv"
	"strings"
)

// numericRegex validates that a string is a plain decimal after cleanup.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// MaxRating is the top of the rating scale.
const MaxRating = 5

// ParseBool accepts true/false, yes/no, t/f, y/n, 1/0 and x (checked box).
// Empty input is a valid false.
func ParseBool(s string) (value, ok bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "":
		return false, true
	case "true", "t", "yes", "y", "1", "x":
		return true, true
	case "false", "f", "no", "n", "0":
		return false, true
	default:
		return false, false
	}
}

// ParseRating parses a 0-5 rating. "4", "4.5", "4/5" and "4 stars" are
// accepted. Empty input returns nil, true.
func ParseRating(s string) (*float64, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return nil, true
	}

	s = strings.TrimSuffix(s, "/5")
	s = strings.TrimSuffix(s, "stars")
	s = strings.TrimSuffix(s, "star")
	s = strings.TrimSpace(s)

	if !numericRegex.MatchString(s) {
		return nil, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || v > MaxRating {
		return nil, false
	}
	return &v, true
}
