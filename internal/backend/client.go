// Package backend is the HTTP client for the directory service that matches
// and commits imported people.
//
// The client implements core.Matcher. Calls are single attempts: a transport
// error or a non-2xx status fails the whole call and nothing is retried.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/JonMunkholm/personimport/internal/core"
	"github.com/JonMunkholm/personimport/internal/logging"
)

// Endpoint paths, relative to the base URL.
const (
	PreviewPath = "/people/import/preview"
	ConfirmPath = "/people/import/confirm"
)

// DefaultTimeout bounds a single backend call.
const DefaultTimeout = 60 * time.Second

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 32 << 20

// ErrStatus is wrapped by errors for non-2xx responses.
var ErrStatus = errors.New("backend returned status")

// APIError is the error body the directory service sends with a non-2xx status.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
	API        *APIError // nil when the body was not a JSON error
	Body       string
}

func (e *StatusError) Error() string {
	if e.API != nil && e.API.Message != "" {
		return fmt.Sprintf("%s %d: %s", ErrStatus, e.StatusCode, e.API.Message)
	}
	if e.Body != "" {
		return fmt.Sprintf("%s %d: %s", ErrStatus, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s %d", ErrStatus, e.StatusCode)
}

func (e *StatusError) Unwrap() error { return ErrStatus }

// Config holds the client settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client calls the directory service import endpoints.
type Client struct {
	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client
}

var _ core.Matcher = (*Client)(nil)

// New validates cfg and returns a client.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend url: %q", raw)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Client{
		baseURL:    u,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type previewRequest struct {
	Rows []core.ImportRow `json:"rows"`
}

type previewResponse struct {
	Rows []core.PreviewRow `json:"rows"`
}

type confirmRequest struct {
	Rows []core.ConfirmRow `json:"rows"`
}

// Preview asks the service what it would do with each row.
func (c *Client) Preview(ctx context.Context, rows []core.ImportRow) ([]core.PreviewRow, error) {
	if rows == nil {
		rows = []core.ImportRow{}
	}

	var out previewResponse
	if err := c.doJSON(ctx, http.MethodPost, PreviewPath, previewRequest{Rows: rows}, &out); err != nil {
		return nil, fmt.Errorf("preview: %w", err)
	}
	return out.Rows, nil
}

// Confirm applies the chosen action for each row.
func (c *Client) Confirm(ctx context.Context, rows []core.ConfirmRow) (*core.ConfirmResult, error) {
	if rows == nil {
		rows = []core.ConfirmRow{}
	}

	var out core.ConfirmResult
	if err := c.doJSON(ctx, http.MethodPost, ConfirmPath, confirmRequest{Rows: rows}, &out); err != nil {
		return nil, fmt.Errorf("confirm: %w", err)
	}
	return &out, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, reqBody, out any) error {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path

	b, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	reqID := middleware.GetReqID(ctx)
	if reqID == "" {
		reqID = uuid.NewString()
	}
	req.Header.Set(middleware.RequestIDHeader, reqID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http do: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	logging.FromContext(ctx).Debug("backend call",
		"path", path,
		"status", resp.StatusCode,
		"request_bytes", len(b),
		"response_bytes", len(respBody),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := &StatusError{StatusCode: resp.StatusCode}
		var apiErr APIError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && strings.TrimSpace(apiErr.Message) != "" {
			se.API = &apiErr
		} else {
			se.Body = truncate(strings.TrimSpace(string(respBody)), 200)
		}
		return se
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
