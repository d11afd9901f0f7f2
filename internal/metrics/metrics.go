// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Session Lifecycle Metrics
var (
	// SessionsStarted tracks sessions opened, labeled by whether an open one was superseded
	SessionsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readtime_sessions_started_total",
			Help: "Total reading sessions started by superseded (true/false)",
		},
		[]string{"superseded"},
	)

	// SessionsClosed tracks sessions closed by close reason
	SessionsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readtime_sessions_closed_total",
			Help: "Total reading sessions closed by reason (stopped/superseded/swept)",
		},
		[]string{"reason"},
	)

	// StopRejections tracks stop requests refused by error code
	StopRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readtime_stop_rejections_total",
			Help: "Total stop requests rejected by error code",
		},
		[]string{"code"},
	)

	// SessionElapsedSeconds tracks the recorded length of closed sessions
	SessionElapsedSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "readtime_session_elapsed_seconds",
			Help:    "Elapsed time recorded for closed sessions by reason",
			Buckets: []float64{60, 300, 900, 1800, 3600, 7200, 14400, 28800, 86400},
		},
		[]string{"reason"},
	)
)

// Retention Metrics
var (
	// RetentionEvictions tracks sessions deleted by the retention cap
	RetentionEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "readtime_retention_evictions_total",
			Help: "Total sessions evicted by per-user-book retention",
		},
	)

	// RetentionErrors tracks failed retention passes
	RetentionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "readtime_retention_errors_total",
			Help: "Total retention passes that failed",
		},
	)
)

// Sweeper Metrics
var (
	// SweepRuns tracks sweep runs by result (completed/skipped/failed)
	SweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readtime_sweep_runs_total",
			Help: "Total sweep runs by result",
		},
		[]string{"result"},
	)

	// SweepSessions tracks per-session sweep outcomes (closed/skipped/failed)
	SweepSessions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readtime_sweep_sessions_total",
			Help: "Open sessions handled by the sweeper by outcome",
		},
		[]string{"outcome"},
	)

	// SweepDuration tracks how long a sweep run takes
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "readtime_sweep_duration_seconds",
			Help:    "Sweep run duration in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30},
		},
	)

	// SweepLastSuccess records the unix time of the last completed sweep
	SweepLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "readtime_sweep_last_success_timestamp_seconds",
			Help: "Unix time of the last completed sweep",
		},
	)
)

// Catalog Metrics
var (
	// CatalogLookups tracks user and book resolution by kind and result (hit/miss/error)
	CatalogLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readtime_catalog_lookups_total",
			Help: "Catalog lookups by kind (user/book) and result",
		},
		[]string{"kind", "result"},
	)

	// CatalogReloads tracks reloads of the local catalog file by status
	CatalogReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readtime_catalog_reloads_total",
			Help: "Catalog file reloads by status (success/error)",
		},
		[]string{"status"},
	)
)

// HTTP Metrics
var (
	// HTTPRequests tracks requests by route pattern, method, and status
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readtime_http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration tracks request latency by route pattern
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "readtime_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// RateLimited tracks requests rejected by the per-client limiter
	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "readtime_http_rate_limited_total",
			Help: "Total HTTP requests rejected by rate limiting",
		},
	)
)

// Bool returns the label value for a boolean.
func Bool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
