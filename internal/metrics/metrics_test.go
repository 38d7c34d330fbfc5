package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusClass(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{200, "2xx"},
		{404, "4xx"},
		{503, "5xx"},
		{0, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusClass(tt.status))
	}
}

func TestObserveBackendCall(t *testing.T) {
	m := get()
	before := testutil.ToFloat64(m.backendCalls.WithLabelValues("preview", "error"))

	ObserveBackendCall("preview", time.Now(), errors.New("boom"))

	after := testutil.ToFloat64(m.backendCalls.WithLabelValues("preview", "error"))
	assert.Equal(t, before+1, after)
}

func TestObserveUpload(t *testing.T) {
	m := get()
	before := testutil.ToFloat64(m.rowsLoaded)

	ObserveUpload("csv", "ok", 5)
	ObserveUpload("csv", "rejected", 7)

	assert.Equal(t, before+5, testutil.ToFloat64(m.rowsLoaded))
}

func TestHandler(t *testing.T) {
	SetSessionsActive(3)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "personimport_sessions_active 3"))
}
