// Watchpost - Camera Event Anomaly Scoring and Alert Dispatch
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchpost

// Package metrics holds the Prometheus instruments for the event pipeline,
// the rule engine, delivery channels, storage and the HTTP API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchpost_events_processed_total",
			Help: "Events processed by the pipeline, by result",
		},
		[]string{"result"}, // "processed", "duplicate", "invalid"
	)

	EventProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "watchpost_event_processing_duration_seconds",
			Help:    "End-to-end processing time per event",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Baseline
	BaselineObserveErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchpost_baseline_observe_errors_total",
			Help: "Baseline updates that failed, by reason",
		},
		[]string{"reason"}, // "invalid_timestamp", "store"
	)

	BaselineSources = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "watchpost_baseline_sources",
			Help: "Sources currently held by the baseline learner",
		},
	)

	// Scoring
	AnomalyScores = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchpost_anomaly_scores_total",
			Help: "Anomaly scores computed, by severity",
		},
		[]string{"severity"},
	)

	AnomalyInsufficientData = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watchpost_anomaly_insufficient_data_total",
			Help: "Events that could not be scored because the baseline is too small",
		},
	)

	AnomalyScoreValue = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "watchpost_anomaly_score",
			Help:    "Distribution of total anomaly scores",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		},
	)

	// Rules
	RuleEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchpost_rule_evaluations_total",
			Help: "Rule evaluations, by outcome",
		},
		[]string{"outcome"}, // "matched", "suppressed", "claimed", "skipped", "error"
	)

	// Dispatch
	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchpost_deliveries_total",
			Help: "Channel deliveries, by channel and result",
		},
		[]string{"channel", "result"}, // result: "success", "failure", "timeout", "circuit_open", "canceled"
	)

	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "watchpost_delivery_duration_seconds",
			Help:    "Time spent in a single channel delivery",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"channel"},
	)

	DispatchesWithoutSuccess = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watchpost_dispatches_without_success_total",
			Help: "Dispatches where no channel succeeded",
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "watchpost_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchpost_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Storage
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "watchpost_db_query_duration_seconds",
			Help:    "Duration of store operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchpost_db_query_errors_total",
			Help: "Failed store operations",
		},
		[]string{"backend", "operation"},
	)

	// API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchpost_api_requests_total",
			Help: "HTTP requests, by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "watchpost_api_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Ingest
	IngestMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchpost_ingest_messages_total",
			Help: "Messages received from the event bus, by result",
		},
		[]string{"result"}, // "processed", "parse_failed", "rejected"
	)
)

// RecordDelivery records one channel invocation.
func RecordDelivery(channel, result string, duration time.Duration) {
	Deliveries.WithLabelValues(channel, result).Inc()
	DeliveryDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordDBQuery records one store operation.
func RecordDBQuery(backend, operation string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(backend, operation).Inc()
	}
}

// RecordAPIRequest records an API request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordAnomalyScore records a computed score.
func RecordAnomalyScore(severity string, total float64) {
	AnomalyScores.WithLabelValues(severity).Inc()
	AnomalyScoreValue.Observe(total)
}
