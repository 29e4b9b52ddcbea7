// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/byron-allsourcedata/Allsource-sub001/internal/logging"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/metrics"
)

// RequestIDWithLogging applies chi's RequestID middleware and stores the
// request ID as the logging correlation ID.
func RequestIDWithLogging() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		withID := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := chimiddleware.GetReqID(r.Context())
			ctx := logging.ContextWithCorrelationID(r.Context(), requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
		return chimiddleware.RequestID(withID)
	}
}

// RateLimit limits requests per client IP. A non-positive limit disables it.
func RateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	if requests <= 0 || window <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(requests, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			respondError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests", nil)
		}),
	)
}

// PrometheusMetrics records request counts and latency by route pattern.
func PrometheusMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				endpoint = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordAPIRequest(r.Method, endpoint, strconv.Itoa(status), time.Since(start))
	})
}
