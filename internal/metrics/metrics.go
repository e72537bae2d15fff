// Package metrics defines Prometheus metrics for the dispatch subsystem.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Admission metrics
var (
	// TriggerAdmissionsTotal tracks admission decisions by queue and outcome.
	TriggerAdmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trigger_admissions_total",
			Help: "Total number of trigger admission decisions by queue and outcome",
		},
		[]string{"queue", "outcome"},
	)

	// QuotaDenialsTotal tracks daily quota denials per queue.
	QuotaDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trigger_quota_denials_total",
			Help: "Total number of admissions denied by the daily quota",
		},
		[]string{"queue"},
	)

	// TriggerReinvokesTotal tracks explicit reinvokes of terminal trigger logs.
	TriggerReinvokesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trigger_reinvokes_total",
			Help: "Total number of trigger log reinvokes",
		},
	)
)

// Dispatch metrics
var (
	// TriggerRunsTotal tracks worker-side dispatch runs by status.
	TriggerRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trigger_runs_total",
			Help: "Total number of trigger dispatch runs by status",
		},
		[]string{"queue", "status"},
	)

	// TriggerRunDuration tracks dispatch run duration.
	TriggerRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trigger_run_duration_seconds",
			Help:    "Trigger dispatch run duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"queue"},
	)
)

// Event fan-out metrics
var (
	// ProviderEventsTotal tracks received provider events.
	ProviderEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_events_total",
			Help: "Total number of provider events received by event name",
		},
		[]string{"event_name"},
	)

	// EventFanOutSize tracks how many workflows each provider event reached.
	EventFanOutSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "provider_event_fan_out_size",
			Help:    "Number of subscribed workflows per provider event",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		},
	)

	// EventInvokeOutcomesTotal tracks per-subscriber invoke outcomes.
	EventInvokeOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_event_invoke_outcomes_total",
			Help: "Per-subscriber workflow invoke outcomes for provider events",
		},
		[]string{"outcome"},
	)
)

// HTTP metrics
var (
	// HTTPRequestsTotal tracks HTTP requests by method, path and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request duration.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Debug session metrics
var (
	// DebugSessionsCreatedTotal tracks debug session creations.
	DebugSessionsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "debug_sessions_created_total",
			Help: "Total number of debug sessions created",
		},
	)

	// DebugEventsDeliveredTotal tracks events delivered to debug sessions.
	DebugEventsDeliveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "debug_events_delivered_total",
			Help: "Total number of events delivered to live debug sessions",
		},
	)

	// DebugSessionsPrunedTotal tracks stale sessions pruned from the index.
	DebugSessionsPrunedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "debug_sessions_pruned_total",
			Help: "Total number of stale debug sessions pruned during dispatch",
		},
	)
)
