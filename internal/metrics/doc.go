// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

/*
Package metrics provides Prometheus instrumentation for the lookalike pipeline.

Collectors are registered with promauto on the default registry and exposed
by the status server at /metrics:

	curl http://localhost:8089/metrics

# Available Metrics

Pipeline:
  - lookalike_jobs_total{status}: finished jobs by outcome
  - lookalike_job_duration_seconds{mode}: wall time of a job
  - lookalike_rows_scored_total{mode}: identity rows scored
  - lookalike_rows_skipped_total{mode}: rows dropped by a scoring error
  - lookalike_stream_interruptions_total: partitions that returned partial results
  - lookalike_worker_duration_seconds{outcome}: wall time of one partition
  - lookalike_training_duration_seconds: regression training time
  - lookalike_progress_checkpoints_total{counter,result}: relative counter updates

Stores:
  - duckdb_query_duration_seconds{operation,table}
  - duckdb_query_errors_total{operation,table,error_type}
  - postgres_query_duration_seconds{operation,table}

Messaging:
  - nats_messages_published_total, nats_messages_consumed_total
  - lookalike_notifications_total{channel,result}
*/
package metrics
