package web

// errors.go turns handler errors into responses.
//
// The technical error is logged with the request id; the client gets the
// coded user message from core.MapError, as JSON for API callers or as an
// HTML fragment for HTMX requests. The status code comes from statusFor.

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/JonMunkholm/personimport/internal/backend"
	"github.com/JonMunkholm/personimport/internal/core"
	"github.com/JonMunkholm/personimport/internal/logging"
	"github.com/JonMunkholm/personimport/internal/tabular"
	"github.com/JonMunkholm/personimport/internal/web/views"
)

// ErrorResponse is the JSON body of an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// badRequestError marks malformed input found by the web layer itself.
type badRequestError struct {
	msg string
	err error
}

func (e *badRequestError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *badRequestError) Unwrap() error { return e.err }

func badRequest(msg string) error {
	return &badRequestError{msg: msg}
}

var statusTable = []struct {
	err    error
	status int
}{
	{core.ErrSessionNotFound, http.StatusNotFound},
	{core.ErrRowNotFound, http.StatusNotFound},
	{core.ErrTemplateNotFound, http.StatusNotFound},
	{core.ErrRunNotFound, http.StatusNotFound},

	{core.ErrInvalidTransition, http.StatusConflict},
	{core.ErrCallInFlight, http.StatusConflict},
	{core.ErrRequiredUnmapped, http.StatusConflict},
	{core.ErrBlockingDuplicates, http.StatusConflict},
	{core.ErrNoIncludedRows, http.StatusConflict},

	{core.ErrInvalidMapping, http.StatusUnprocessableEntity},
	{core.ErrInvalidRow, http.StatusUnprocessableEntity},
	{core.ErrInvalidAction, http.StatusUnprocessableEntity},
	{core.ErrPreviewTooLarge, http.StatusUnprocessableEntity},
	{core.ErrNoHeaders, http.StatusUnprocessableEntity},
	{core.ErrTooManyRows, http.StatusUnprocessableEntity},
	{tabular.ErrUnsupportedFormat, http.StatusUnsupportedMediaType},
	{tabular.ErrEmptyFile, http.StatusUnprocessableEntity},
	{tabular.ErrNoHeaders, http.StatusUnprocessableEntity},

	{core.ErrTooManyCalls, http.StatusServiceUnavailable},
	{core.ErrTemplatesDisabled, http.StatusNotImplemented},
	{core.ErrRunsDisabled, http.StatusNotImplemented},

	{backend.ErrStatus, http.StatusBadGateway},
	{context.DeadlineExceeded, http.StatusGatewayTimeout},
}

// statusFor picks the HTTP status for err.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) || strings.Contains(err.Error(), "request body too large") {
		return http.StatusRequestEntityTooLarge
	}
	var bad *badRequestError
	if errors.As(err, &bad) {
		return http.StatusBadRequest
	}
	for _, e := range statusTable {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return http.StatusBadGateway
	}
	if strings.Contains(err.Error(), "already exists") {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respondError logs err and writes the mapped user message.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	log := logger.Warn
	if status >= http.StatusInternalServerError {
		log = logger.Error
	}
	log("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", msg.Code,
		"error", err.Error(),
	)

	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_ = views.ErrorAlert(msg.Message, msg.Action, msg.Code).Render(r.Context(), w)
		return
	}

	writeJSON(w, status, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// isHTMX checks if the request is an HTMX request.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
