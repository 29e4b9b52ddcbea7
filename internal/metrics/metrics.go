// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline Metrics
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookalike_jobs_total",
			Help: "Total number of finished lookalike jobs",
		},
		[]string{"status"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lookalike_job_duration_seconds",
			Help:    "Wall time of a lookalike job in seconds",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 1800, 3600, 7200},
		},
		[]string{"mode"},
	)

	RowsScored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookalike_rows_scored_total",
			Help: "Total number of identity rows scored",
		},
		[]string{"mode"},
	)

	RowsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookalike_rows_skipped_total",
			Help: "Total number of identity rows skipped after a scoring error",
		},
		[]string{"mode"},
	)

	IdentityRowsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookalike_identity_rows_rejected_total",
			Help: "Total number of identity rows dropped because they could not be decoded or had no asid",
		},
		[]string{"table"},
	)

	StreamInterruptions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lookalike_stream_interruptions_total",
			Help: "Total number of partitions that returned partial results after a stream interruption",
		},
	)

	WorkerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lookalike_worker_duration_seconds",
			Help:    "Wall time of one scoring partition in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 2400},
		},
		[]string{"outcome"}, // "ok", "partial", "error", "timeout", "cached"
	)

	TrainingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lookalike_training_duration_seconds",
			Help:    "Regression model training time in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ProgressCheckpoints = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookalike_progress_checkpoints_total",
			Help: "Total number of relative progress counter updates",
		},
		[]string{"counter", "result"},
	)

	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table", "error_type"},
	)

	PostgresQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "postgres_query_duration_seconds",
			Help:    "Duration of relational store queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	// Messaging Metrics
	NATSPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nats_messages_published_total",
			Help: "Total number of messages published to NATS",
		},
	)

	NATSConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nats_messages_consumed_total",
			Help: "Total number of job request messages consumed from NATS",
		},
	)

	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookalike_notifications_total",
			Help: "Total number of completion notifications by channel and result",
		},
		[]string{"channel", "result"},
	)

	// Status Server Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookalike_api_requests_total",
			Help: "Total number of status server requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lookalike_api_request_duration_seconds",
			Help:    "Status server request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "endpoint"},
	)
)

// RecordDBQuery records a DuckDB query metric
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		errorType := err.Error()
		// Truncate long error messages
		if len(errorType) > 50 {
			errorType = errorType[:50]
		}
		DBQueryErrors.WithLabelValues(operation, table, errorType).Inc()
	}
}

// RecordPostgresQuery records a relational store query metric
func RecordPostgresQuery(operation, table string, duration time.Duration) {
	PostgresQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordJob records a finished job
func RecordJob(mode, status string, duration time.Duration) {
	JobsTotal.WithLabelValues(status).Inc()
	JobDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordRows records scored and skipped rows of one partition
func RecordRows(mode string, scored, skipped int64) {
	if scored > 0 {
		RowsScored.WithLabelValues(mode).Add(float64(scored))
	}
	if skipped > 0 {
		RowsSkipped.WithLabelValues(mode).Add(float64(skipped))
	}
}

// RecordRowsRejected records identity rows dropped while reading a table
func RecordRowsRejected(table string, n int64) {
	if n > 0 {
		IdentityRowsRejected.WithLabelValues(table).Add(float64(n))
	}
}

// RecordWorker records the duration and outcome of one partition
func RecordWorker(outcome string, duration time.Duration) {
	WorkerDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	if outcome == "partial" {
		StreamInterruptions.Inc()
	}
}

// RecordTraining records a training run
func RecordTraining(duration time.Duration) {
	TrainingDuration.Observe(duration.Seconds())
}

// RecordCheckpoint records a progress counter update
func RecordCheckpoint(counter string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	ProgressCheckpoints.WithLabelValues(counter, result).Inc()
}

// RecordNATSPublish increments the published message counter
func RecordNATSPublish() {
	NATSPublished.Inc()
}

// RecordNATSConsume increments the consumed message counter
func RecordNATSConsume() {
	NATSConsumed.Inc()
}

// RecordNotification records a completion notification attempt
func RecordNotification(channel string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	Notifications.WithLabelValues(channel, result).Inc()
}

// RecordAPIRequest records a status server request
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
