// Package metrics exposes Prometheus collectors for the linkboard service.
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

var (
	upstreamRequestsTotal          *prometheus.CounterVec
	upstreamRequestDurationSeconds *prometheus.HistogramVec
	httpRequestsTotal              *prometheus.CounterVec
	httpRequestDurationSeconds     *prometheus.HistogramVec
	serpPollAttemptsTotal          *prometheus.CounterVec
	projectRunsTotal               *prometheus.CounterVec
	tokenRefreshesTotal            *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		upstreamRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkboard_upstream_requests_total",
				Help: "Total upstream API calls, labeled by provider, endpoint, and outcome.",
			},
			[]string{"provider", "endpoint", "outcome"},
		)

		upstreamRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "linkboard_upstream_request_duration_seconds",
				Help:    "Histogram of upstream API latencies, labeled by provider and endpoint.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"provider", "endpoint"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		serpPollAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkboard_serp_poll_attempts_total",
				Help: "Total SERP task poll attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		projectRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkboard_project_runs_total",
				Help: "Total project runs executed, labeled by status.",
			},
			[]string{"status"},
		)

		tokenRefreshesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkboard_token_refreshes_total",
				Help: "Total OAuth token refreshes, labeled by outcome.",
			},
			[]string{"outcome"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveUpstream records one upstream API call.
func ObserveUpstream(provider, endpoint, outcome string, duration time.Duration) {
	upstreamRequestsTotal.WithLabelValues(provider, endpoint, outcome).Inc()
	upstreamRequestDurationSeconds.WithLabelValues(provider, endpoint).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveSerpPoll increments the poll attempt counter for the given outcome.
func ObserveSerpPoll(outcome string) {
	serpPollAttemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveProjectRun increments the run counter for the given status.
func ObserveProjectRun(status string) {
	projectRunsTotal.WithLabelValues(status).Inc()
}

// ObserveTokenRefresh increments the token refresh counter.
func ObserveTokenRefresh(outcome string) {
	tokenRefreshesTotal.WithLabelValues(outcome).Inc()
}
