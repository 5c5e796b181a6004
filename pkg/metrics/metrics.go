// Package metrics holds the process prometheus collectors.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const prefix = "hostelops"

var (
	// ScopeDecisions counts resolver outcomes
	ScopeDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_scope_decisions_total",
			Help: "Scope resolver decisions by role and outcome",
		},
		[]string{"role", "allowed"},
	)

	// LimitDenials counts subscription limit rejections
	LimitDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_limit_denials_total",
			Help: "Creations rejected by subscription limits",
		},
		[]string{"limit"},
	)

	// OccupancyTransitions counts bed assignments and vacates
	OccupancyTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_occupancy_transitions_total",
			Help: "Bed state transitions by kind and outcome",
		},
		[]string{"transition", "outcome"},
	)

	// PaymentCallbacks counts gateway confirmations
	PaymentCallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_payment_callbacks_total",
			Help: "Gateway confirmation callbacks by gateway and outcome",
		},
		[]string{"gateway", "outcome"},
	)

	// TxRetries counts transaction attempts repeated after serialization failures
	TxRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_tx_retries_total",
			Help: "Transactions retried after a serialization failure",
		},
	)

	// NotifyFailures counts post-commit notifications that could not be queued
	NotifyFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_notify_failures_total",
			Help: "Post-commit notifications that failed to dispatch",
		},
	)

	// SweepUpdates counts rows changed by scheduled sweeps
	SweepUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_sweep_updates_total",
			Help: "Rows updated by scheduled sweeps",
		},
		[]string{"sweep"},
	)

	// JobsProcessed counts queue jobs handled by the worker
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_jobs_processed_total",
			Help: "Queued jobs handled by the worker, by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// HTTPRequests counts API requests by route and status
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPDuration request latency by route
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func ObserveScopeDecision(role string, allowed bool) {
	ScopeDecisions.WithLabelValues(role, strconv.FormatBool(allowed)).Inc()
}
