package core

// error_messages.go maps errors to user-facing messages with a support code.
//
// # Error Codes Reference
//
// File errors (FILE001-FILE099):
//
//	FILE001 - File too large
//	FILE002 - Unsupported file format
//	FILE003 - Empty file
//	FILE004 - No header row
//	FILE005 - Too many rows
//	FILE006 - No file provided
//
// Mapping errors (MAP001-MAP099):
//
//	MAP001 - Required field not mapped
//	MAP002 - Invalid mapping
//
// Review errors (REV001-REV099):
//
//	REV001 - Row not found
//	REV002 - Invalid row values
//	REV003 - Blocking duplicates
//	REV004 - No included rows
//
// Preview/confirm errors (PRV001-PRV099):
//
//	PRV001 - Preview too large
//	PRV002 - Call already running for this session
//	PRV003 - Backend busy
//	PRV004 - Backend unreachable
//	PRV005 - Backend rejected the request
//	PRV006 - Invalid action
//
// Session errors (SES001-SES099):
//
//	SES001 - Session not found or expired
//	SES002 - Step not allowed in the current phase
//
// Template and history errors (TPL001-TPL099, RUN001-RUN099):
//
//	TPL001 - Template not found
//	TPL002 - Templates need a database
//	TPL003 - Template name taken
//	RUN001 - Run not found
//	RUN002 - History needs a database
//
// Request errors: REQ001 cancelled, REQ002 timed out, RATE001 rate limited.
// ERR000 is the fallback; check the logs for the original error.
//
// Known sentinel errors are matched with errors.Is first. Other errors are
// matched case-insensitively by substring, first match wins.

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/personimport/internal/tabular"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type sentinelMessage struct {
	err error
	msg UserMessage
}

var sentinelMessages = []sentinelMessage{
	{tabular.ErrUnsupportedFormat, UserMessage{"This file type is not supported", "Upload a CSV, TSV or XLSX file", "FILE002"}},
	{tabular.ErrEmptyFile, UserMessage{"The uploaded file is empty", "Upload a file with a header row and data rows", "FILE003"}},
	{tabular.ErrNoHeaders, UserMessage{"The file has no header row", "Put the column names in the first row", "FILE004"}},
	{ErrNoHeaders, UserMessage{"The file has no header row", "Put the column names in the first row", "FILE004"}},
	{ErrTooManyRows, UserMessage{"The file has too many rows", "Split the file into smaller files", "FILE005"}},

	{ErrRequiredUnmapped, UserMessage{"A required field is not mapped", "Map a column to every required field", "MAP001"}},
	{ErrInvalidMapping, UserMessage{"The mapping is not valid", "Choose columns that exist in the file", "MAP002"}},

	{ErrRowNotFound, UserMessage{"Row not found", "Reload the review list", "REV001"}},
	{ErrInvalidRow, UserMessage{"Some values in the row are not valid", "Fix the highlighted values and save again", "REV002"}},
	{ErrBlockingDuplicates, UserMessage{"Duplicate people must be resolved first", "Exclude or edit the duplicate rows, or use auto-exclude", "REV003"}},
	{ErrNoIncludedRows, UserMessage{"No rows are included", "Include at least one row", "REV004"}},

	{ErrPreviewTooLarge, UserMessage{"Too many rows to preview at once", "Exclude rows or split the file", "PRV001"}},
	{ErrCallInFlight, UserMessage{"A preview or confirm is already running", "Wait for it to finish", "PRV002"}},
	{ErrTooManyCalls, UserMessage{"The directory service is busy", "Please wait a moment and try again", "PRV003"}},
	{ErrInvalidAction, UserMessage{"That action is not allowed for this row", "Choose create, update or skip", "PRV006"}},

	{ErrSessionNotFound, UserMessage{"Import session not found", "The session may have expired. Please upload the file again", "SES001"}},
	{ErrInvalidTransition, UserMessage{"That step is not available right now", "Reload the page to see the current step", "SES002"}},

	{ErrTemplateNotFound, UserMessage{"Template not found", "Reload the template list", "TPL001"}},
	{ErrTemplatesDisabled, UserMessage{"Saved templates are not available", "Ask an administrator to configure a database", "TPL002"}},
	{ErrRunNotFound, UserMessage{"Import run not found", "Reload the history list", "RUN001"}},
	{ErrRunsDisabled, UserMessage{"Import history is not available", "Ask an administrator to configure a database", "RUN002"}},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns covers errors from outside this package. Specific patterns
// come before general ones.
var errorPatterns = []errorPattern{
	{"request body too large", UserMessage{"File exceeds the maximum upload size", "Split the file into smaller files", "FILE001"}},
	{"file too large", UserMessage{"File exceeds the maximum upload size", "Split the file into smaller files", "FILE001"}},
	{"no file provided", UserMessage{"No file was selected", "Please select a file to upload", "FILE006"}},
	{"already exists", UserMessage{"A template with this name already exists", "Choose another name", "TPL003"}},
	{"backend returned status", UserMessage{"The directory service rejected the request", "Please try again or contact support", "PRV005"}},
	{"connection refused", UserMessage{"Unable to reach the directory service", "Please try again in a few moments", "PRV004"}},
	{"no such host", UserMessage{"Unable to reach the directory service", "Please try again in a few moments", "PRV004"}},
	{"connection reset", UserMessage{"Connection to the directory service was interrupted", "Please try again", "PRV004"}},
	{"context canceled", UserMessage{"Request was cancelled", "Please try again", "REQ001"}},
	{"context deadline exceeded", UserMessage{"Request timed out", "Please try again later", "REQ002"}},
	{"timeout", UserMessage{"Request timed out", "Please try again later", "REQ002"}},
	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error to a user-facing message. Returns the zero
// value for a nil error and ERR000 when nothing matches.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError formats an error as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error (for logs) with its user message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err into a UserError. Returns nil for a nil error.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
