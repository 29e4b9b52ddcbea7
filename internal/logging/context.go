// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	jobIDKey         contextKey = "job_id"
	loggerKey        contextKey = "logger"
)

// GenerateCorrelationID returns a short random ID for log correlation.
func GenerateCorrelationID() string {
	return uuid.New().String()[:8]
}

// ContextWithCorrelationID attaches a correlation ID, usually the broker
// message UUID of the request being handled.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFromContext returns the correlation ID or "".
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

// ContextWithJobID attaches the lookalike job being processed.
func ContextWithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey, jobID)
}

// JobIDFromContext returns the job ID or "".
func JobIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(jobIDKey).(string)
	return id
}

// ContextWithLogger stores a pre-configured logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func ContextWithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// Ctx returns a logger carrying the context's correlation and job IDs.
// The stored logger is used when present, the global logger otherwise.
//
//	logging.Ctx(ctx).Info().Msg("Job accepted")
func Ctx(ctx context.Context) *zerolog.Logger {
	base, ok := ctx.Value(loggerKey).(zerolog.Logger)
	if !ok {
		base = Logger()
	}
	lc := base.With()
	if id := CorrelationIDFromContext(ctx); id != "" {
		lc = lc.Str("correlation_id", id)
	}
	if id := JobIDFromContext(ctx); id != "" {
		lc = lc.Str("job_id", id)
	}
	l := lc.Logger()
	return &l
}
