// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

// Package logging provides the process-wide zerolog logger.
//
// Every component logs through zerolog. Long-lived components receive a
// zerolog.Logger derived with WithComponent; request-scoped code uses Ctx to
// pick up the correlation and job IDs carried by the context.
//
// # Quick Start
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//
//	logging.Info().Str("job_id", id).Msg("Lookalike job accepted")
//	logging.Ctx(ctx).Warn().Err(err).Msg("Progress checkpoint failed")
//
// # slog Bridge
//
// Suture and Watermill take a *slog.Logger. NewSlogLogger returns one that
// writes through the global zerolog logger so all output shares one format:
//
//	wmLogger := watermill.NewSlogLogger(logging.NewSlogLogger())
//	supervisor := suture.New("root", suture.Spec{EventHook: (&sutureslog.Handler{Logger: logging.NewSlogLogger()}).MustHook()})
//
// # Configuration
//
// Level, format and caller reporting come from the logging section of the
// service configuration (LOG_LEVEL, LOG_FORMAT, LOG_CALLER).
package logging
