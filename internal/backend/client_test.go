package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/personimport/internal/core"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL + "/api/", APIKey: "secret", Timeout: time.Second})
	require.NoError(t, err)
	return c
}

func TestNew_InvalidURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:9000", "://bad"} {
		_, err := New(Config{BaseURL: raw})
		assert.Error(t, err, raw)
	}
}

func TestClient_Preview(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api"+PreviewPath, r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))

		var req struct {
			Rows []map[string]any `json:"rows"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) || !assert.Len(t, req.Rows, 1) {
			return
		}
		assert.Equal(t, "ann@x.com", req.Rows[0]["primaryEmail"])
		assert.NotContains(t, req.Rows[0], "issues", "session fields are not sent")
		assert.NotContains(t, req.Rows[0], "excluded")

		_, _ = w.Write([]byte(`{"rows":[{"rowNumber":1,"suggestedAction":"update","personId":"p-1","matchBasis":"email","warnings":["name differs"]}]}`))
	})

	got, err := c.Preview(context.Background(), []core.ImportRow{
		{RowNumber: 1, Type: core.PersonExternal, DisplayName: "Ann", PrimaryEmail: "ann@x.com"},
	})
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, core.SuggestUpdate, got[0].SuggestedAction)
	assert.Equal(t, "p-1", got[0].PersonID)
	assert.Equal(t, core.MatchEmail, got[0].MatchBasis)
	assert.Equal(t, []string{"name differs"}, got[0].Warnings)
}

func TestClient_Confirm(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api"+ConfirmPath, r.URL.Path)

		var req struct {
			Rows []core.ConfirmRow `json:"rows"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) || !assert.Len(t, req.Rows, 2) {
			return
		}
		assert.Equal(t, core.ActionUpdate, req.Rows[0].Action)
		assert.Equal(t, "p-1", req.Rows[0].PersonID)
		assert.Equal(t, core.ActionSkip, req.Rows[1].Action)

		_, _ = w.Write([]byte(`{"summary":{"processed":2,"updated":1,"skipped":1},"rows":[{"rowNumber":1,"status":"ok"},{"rowNumber":2,"status":"skipped"}]}`))
	})

	res, err := c.Confirm(context.Background(), []core.ConfirmRow{
		{ImportRow: core.ImportRow{RowNumber: 1, DisplayName: "Ann"}, Action: core.ActionUpdate, PersonID: "p-1"},
		{ImportRow: core.ImportRow{RowNumber: 2, DisplayName: "Bob"}, Action: core.ActionSkip},
	})
	require.NoError(t, err)

	assert.Equal(t, core.ConfirmSummary{Processed: 2, Updated: 1, Skipped: 1}, res.Summary)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, core.StatusSkipped, res.Rows[1].Status)
}

func TestClient_StatusErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"json error body", http.StatusUnprocessableEntity, `{"message":"rows must not be empty","code":"EMPTY"}`, "rows must not be empty"},
		{"plain body", http.StatusBadGateway, "upstream down", "upstream down"},
		{"empty body", http.StatusInternalServerError, "", "backend returned status 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.Preview(context.Background(), nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrStatus)
			assert.Contains(t, err.Error(), tt.wantMsg)

			var se *StatusError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.status, se.StatusCode)
			assert.Equal(t, "PRV005", core.MapError(err).Code)
		})
	}
}

func TestClient_BadJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"rows":[`))
	})

	_, err := c.Preview(context.Background(), nil)
	assert.ErrorContains(t, err, "decode response")
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = c.Confirm(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, "REQ002", core.MapError(err).Code)
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(Config{BaseURL: url})
	require.NoError(t, err)

	_, err = c.Preview(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, "PRV004", core.MapError(err).Code)
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "abc", 5, "abc"},
		{"exact", "abcde", 5, "abcde"},
		{"ascii cut", "abcdef", 3, "abc..."},
		{"keeps whole rune", "aé", 2, "a..."},
		{"three byte rune", "ab€cd", 4, "ab..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.n)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}
