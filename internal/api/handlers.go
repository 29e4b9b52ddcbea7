// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/byron-allsourcedata/Allsource-sub001/internal/cache"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/eventprocessor"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/lookalike"
)

// JobReader loads job rows for progress reporting.
type JobReader interface {
	GetJob(ctx context.Context, jobID string) (*lookalike.Job, error)
}

// HealthReporter aggregates component health.
type HealthReporter interface {
	CheckAll(ctx context.Context) eventprocessor.OverallHealth
}

// maxJobIDLength matches the width of the job ID column.
const maxJobIDLength = 36

// Handler serves the status endpoints.
type Handler struct {
	jobs      JobReader
	health    HealthReporter
	progress  *cache.TTL[lookalike.Progress]
	startTime time.Time
	now       func() time.Time
}

// NewHandler creates a handler. Progress responses are cached for
// progressTTL so dashboards polling many jobs don't hammer Postgres;
// a zero TTL disables the cache.
func NewHandler(jobs JobReader, health HealthReporter, progressTTL time.Duration) *Handler {
	h := &Handler{
		jobs:      jobs,
		health:    health,
		startTime: time.Now(),
		now:       time.Now,
	}
	if progressTTL > 0 {
		h.progress = cache.NewTTL[lookalike.Progress](progressTTL)
	}
	return h
}

// Health reports aggregated component health. Unhealthy returns 503.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health == nil {
		respondData(w, http.StatusOK, map[string]interface{}{
			"status": eventprocessor.HealthStatusHealthy,
			"uptime": time.Since(h.startTime).Seconds(),
		}, false)
		return
	}

	overall := h.health.CheckAll(r.Context())
	status := http.StatusOK
	if !overall.Healthy {
		status = http.StatusServiceUnavailable
	}
	respondData(w, status, overall, false)
}

// HealthLive returns 200 while the process is alive.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	}, false)
}

// JobProgress returns processed counts, percent and ETA of a job.
func (h *Handler) JobProgress(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if jobID == "" || len(jobID) > maxJobIDLength {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid job ID", nil)
		return
	}

	if h.progress != nil {
		if p, ok := h.progress.Get(jobID); ok {
			respondData(w, http.StatusOK, p, true)
			return
		}
	}

	job, err := h.jobs.GetJob(r.Context(), jobID)
	if errors.Is(err, lookalike.ErrJobNotFound) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load job", err)
		return
	}

	p := lookalike.ComputeProgress(job, h.now())
	if h.progress != nil {
		h.progress.Set(jobID, p)
	}
	respondData(w, http.StatusOK, p, false)
}

// SweepProgressCache drops expired progress entries and returns how many
// were removed.
func (h *Handler) SweepProgressCache() int {
	if h.progress == nil {
		return 0
	}
	return h.progress.Cleanup()
}
