package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Decisions counts suppression decisions by reason and outcome.
	Decisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errcache_decisions_total",
			Help: "Total number of error display decisions",
		},
		[]string{"reason", "visible"},
	)

	// Dismissals counts manual dismissals.
	Dismissals = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "errcache_dismissals_total",
			Help: "Total number of errors dismissed by users",
		},
	)

	// Retries counts retry checks and records by result.
	Retries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errcache_retries_total",
			Help: "Total number of retry checks and recordings",
		},
		[]string{"result"},
	)

	// StoreErrors counts failed store operations.
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errcache_store_errors_total",
			Help: "Total number of failed error cache store operations",
		},
		[]string{"op"},
	)

	// DecisionLogFlushed counts decisions persisted to the decision log.
	DecisionLogFlushed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "errcache_decision_log_flushed_total",
			Help: "Total number of decisions written to the decision log",
		},
	)

	// DecisionLogDropped counts decisions dropped on buffer overflow or after
	// repeated write failures.
	DecisionLogDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "errcache_decision_log_dropped_total",
			Help: "Total number of decisions dropped before reaching the decision log",
		},
	)

	// HTTPRequestDuration tracks API latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "errcache_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)
