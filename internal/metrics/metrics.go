// Package metrics exposes Prometheus instruments for the import service.
//
// Instruments are registered with the default registry on first use.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "personimport"

type metrics struct {
	sessionsActive prometheus.Gauge
	sessionsTotal  *prometheus.CounterVec
	rowsLoaded     prometheus.Counter

	backendCalls   *prometheus.CounterVec
	backendLatency *prometheus.HistogramVec
	confirmRows    *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		sessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Current number of live import sessions.",
		}),
		sessionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Upload attempts by file format and result.",
		}, []string{"format", "result"}),
		rowsLoaded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_loaded_total",
			Help:      "Raw rows accepted into import sessions.",
		}),
		backendCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_calls_total",
			Help:      "Backend preview/confirm calls by result.",
		}, []string{"call", "result"}),
		backendLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_call_seconds",
			Help:      "Latency of backend preview/confirm calls.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"call"}),
		confirmRows: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "confirm_rows_total",
			Help:      "Confirmed rows by backend outcome.",
		}, []string{"outcome"}),
		httpRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status class.",
		}, []string{"route", "method", "status"}),
		httpLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
})

func get() *metrics {
	return metricsSingleton()
}

// SetSessionsActive records the number of live sessions.
func SetSessionsActive(n int) {
	get().sessionsActive.Set(float64(n))
}

// ObserveUpload counts an upload attempt. result is "ok" or an error class.
func ObserveUpload(format, result string, rows int) {
	m := get()
	if format == "" {
		format = "unknown"
	}
	m.sessionsTotal.WithLabelValues(format, result).Inc()
	if result == "ok" {
		m.rowsLoaded.Add(float64(rows))
	}
}

// ObserveBackendCall records one preview or confirm call.
func ObserveBackendCall(call string, start time.Time, err error) {
	m := get()
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.backendCalls.WithLabelValues(call, result).Inc()
	m.backendLatency.WithLabelValues(call).Observe(time.Since(start).Seconds())
}

// ObserveConfirmSummary adds the aggregate counts of a confirm call.
func ObserveConfirmSummary(created, updated, skipped, errors int) {
	m := get()
	m.confirmRows.WithLabelValues("created").Add(float64(created))
	m.confirmRows.WithLabelValues("updated").Add(float64(updated))
	m.confirmRows.WithLabelValues("skipped").Add(float64(skipped))
	m.confirmRows.WithLabelValues("error").Add(float64(errors))
}

// ObserveHTTP records a finished request. route should be the router
// pattern, not the raw path, to keep label cardinality bounded.
func ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	m := get()
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(route, method, statusClass(status)).Inc()
	m.httpLatency.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}

// Handler serves the default registry.
func Handler() http.Handler {
	get()
	return promhttp.Handler()
}
