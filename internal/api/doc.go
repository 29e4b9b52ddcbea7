// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

// Package api serves the filler's internal status endpoints on a Chi router:
//
//	GET /healthz              aggregated component health (503 when unhealthy)
//	GET /healthz/live         liveness probe
//	GET /metrics              Prometheus exposition
//	GET /jobs/{id}/progress   processed counts, percent and ETA of a job
//
// Job routes are rate limited per client IP with httprate. Responses use the
// APIResponse envelope.
package api
