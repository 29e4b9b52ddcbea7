// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package api

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/byron-allsourcedata/Allsource-sub001/internal/config"
)

// NewRouter builds the status server routes.
func NewRouter(h *Handler, cfg *config.ServerConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	// Probes and scrapes are not rate limited.
	r.Get("/healthz", h.Health)
	r.Get("/healthz/live", h.HealthLive)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/jobs", func(r chi.Router) {
		r.Use(RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		r.Use(PrometheusMetrics)
		r.Get("/{id}/progress", h.JobProgress)
	})

	return r
}

// NewHTTPServer returns the status server for cfg.
func NewHTTPServer(cfg *config.ServerConfig, handler http.Handler) *http.Server {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:           http.TimeoutHandler(handler, timeout, "request timeout"),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       timeout,
		WriteTimeout:      timeout + 5*time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
