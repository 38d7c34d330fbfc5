package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/JonMunkholm/personimport/internal/tabular"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "nil error returns empty",
			err:         nil,
			wantCode:    "",
			wantMessage: "",
		},
		{
			name:        "wrapped decode error maps by sentinel",
			err:         fmt.Errorf("decode people.pdf: %w", tabular.ErrUnsupportedFormat),
			wantCode:    "FILE002",
			wantMessage: "This file type is not supported",
		},
		{
			name:        "too many rows",
			err:         fmt.Errorf("%w: file has 3000 rows, limit is 2000", ErrTooManyRows),
			wantCode:    "FILE005",
			wantMessage: "The file has too many rows",
		},
		{
			name:        "required field unmapped",
			err:         fmt.Errorf("%w: displayName", ErrRequiredUnmapped),
			wantCode:    "MAP001",
			wantMessage: "A required field is not mapped",
		},
		{
			name:        "blocking duplicates",
			err:         fmt.Errorf("%w: 2 group(s) must be resolved", ErrBlockingDuplicates),
			wantCode:    "REV003",
			wantMessage: "Duplicate people must be resolved first",
		},
		{
			name:        "call in flight",
			err:         ErrCallInFlight,
			wantCode:    "PRV002",
			wantMessage: "A preview or confirm is already running",
		},
		{
			name:        "session not found",
			err:         fmt.Errorf("%w: abc", ErrSessionNotFound),
			wantCode:    "SES001",
			wantMessage: "Import session not found",
		},
		{
			name:        "backend status maps by pattern",
			err:         errors.New("preview: backend returned status 502"),
			wantCode:    "PRV005",
			wantMessage: "The directory service rejected the request",
		},
		{
			name:        "connection refused maps by pattern",
			err:         errors.New("dial tcp 127.0.0.1:9000: connection refused"),
			wantCode:    "PRV004",
			wantMessage: "Unable to reach the directory service",
		},
		{
			name:        "file too large",
			err:         errors.New("http: request body too large"),
			wantCode:    "FILE001",
			wantMessage: "File exceeds the maximum upload size",
		},
		{
			name:        "rate limit",
			err:         errors.New("rate limit exceeded"),
			wantCode:    "RATE001",
			wantMessage: "Too many requests",
		},
		{
			name:        "unknown error returns default",
			err:         errors.New("some random internal error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
		{
			name:        "case insensitive matching",
			err:         errors.New("CONTEXT DEADLINE EXCEEDED"),
			wantCode:    "REQ002",
			wantMessage: "Request timed out",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() Code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("MapError() Message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestMapError_SentinelBeatsPattern(t *testing.T) {
	// The text mentions a timeout but the chain holds a known sentinel.
	err := fmt.Errorf("timeout while waiting: %w", ErrTooManyCalls)
	if got := MapError(err).Code; got != "PRV003" {
		t.Errorf("MapError() Code = %q, want PRV003", got)
	}
}

func TestFormatUserError(t *testing.T) {
	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}

	got := FormatUserError(ErrNoIncludedRows)
	if !strings.Contains(got, "(Code: REV004)") {
		t.Errorf("FormatUserError() = %q, want code REV004", got)
	}
	if !strings.HasSuffix(got, "Include at least one row") {
		t.Errorf("FormatUserError() = %q, want action suffix", got)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", ErrRowNotFound, true},
		{"pattern", errors.New("no such host"), true},
		{"unknown", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUserError(t *testing.T) {
	if NewUserError(nil) != nil {
		t.Fatal("NewUserError(nil) should be nil")
	}

	cause := fmt.Errorf("%w: 7", ErrRowNotFound)
	ue := NewUserError(cause)
	if ue.Error() != "Row not found" {
		t.Errorf("Error() = %q", ue.Error())
	}
	if !errors.Is(ue, ErrRowNotFound) {
		t.Error("UserError should unwrap to the technical error")
	}
	if ue.User.Code != "REV001" {
		t.Errorf("User.Code = %q, want REV001", ue.User.Code)
	}
}
