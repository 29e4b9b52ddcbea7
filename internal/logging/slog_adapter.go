// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package logging

import (
	"context"
	"log/slog"
	"strings"

	"github.com/rs/zerolog"
)

// SlogHandler is a slog.Handler writing through zerolog. Suture and
// Watermill log through it.
type SlogHandler struct {
	logger zerolog.Logger
	attrs  []groupedAttr
	prefix string
}

// groupedAttr remembers the group prefix that was open when the attr was added.
type groupedAttr struct {
	prefix string
	attr   slog.Attr
}

// NewSlogHandler wraps the global logger.
func NewSlogHandler() *SlogHandler {
	return &SlogHandler{logger: Logger()}
}

// NewSlogHandlerWithLogger wraps logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewSlogHandlerWithLogger(logger zerolog.Logger) *SlogHandler {
	return &SlogHandler{logger: logger}
}

// NewSlogLogger returns a *slog.Logger over the global zerolog logger.
func NewSlogLogger() *slog.Logger {
	return slog.New(NewSlogHandler())
}

// NewSlogLoggerFor returns a *slog.Logger tagged with component.
func NewSlogLoggerFor(component string) *slog.Logger {
	return slog.New(NewSlogHandlerWithLogger(WithComponent(component)))
}

// Enabled implements slog.Handler.
func (h *SlogHandler) Enabled(_ context.Context, level slog.Level) bool {
	zl := slogLevel(level)
	return zl >= h.logger.GetLevel() && zl >= zerolog.GlobalLevel()
}

// Handle implements slog.Handler.
//
//nolint:gocritic // slog.Record is passed by value per slog.Handler interface
func (h *SlogHandler) Handle(_ context.Context, r slog.Record) error {
	event := h.logger.WithLevel(slogLevel(r.Level))
	for _, ga := range h.attrs {
		event = appendAttr(event, ga.prefix, ga.attr)
	}
	r.Attrs(func(a slog.Attr) bool {
		event = appendAttr(event, h.prefix, a)
		return true
	})
	event.Msg(r.Message)
	return nil
}

// WithAttrs implements slog.Handler.
func (h *SlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]groupedAttr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(next.attrs, h.attrs)
	for _, a := range attrs {
		next.attrs = append(next.attrs, groupedAttr{prefix: h.prefix, attr: a})
	}
	return &next
}

// WithGroup implements slog.Handler. Group names prefix attribute keys.
func (h *SlogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func appendAttr(e *zerolog.Event, prefix string, a slog.Attr) *zerolog.Event {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return e
	}
	key := prefix + a.Key

	switch a.Value.Kind() {
	case slog.KindString:
		return e.Str(key, a.Value.String())
	case slog.KindInt64:
		return e.Int64(key, a.Value.Int64())
	case slog.KindUint64:
		return e.Uint64(key, a.Value.Uint64())
	case slog.KindFloat64:
		return e.Float64(key, a.Value.Float64())
	case slog.KindBool:
		return e.Bool(key, a.Value.Bool())
	case slog.KindDuration:
		return e.Dur(key, a.Value.Duration())
	case slog.KindTime:
		return e.Time(key, a.Value.Time())
	case slog.KindGroup:
		sub := key + "."
		if a.Key == "" {
			sub = prefix
		}
		for _, g := range a.Value.Group() {
			e = appendAttr(e, sub, g)
		}
		return e
	default:
		if err, ok := a.Value.Any().(error); ok {
			if strings.EqualFold(a.Key, "err") || strings.EqualFold(a.Key, "error") {
				return e.AnErr(zerolog.ErrorFieldName, err)
			}
			return e.AnErr(key, err)
		}
		return e.Interface(key, a.Value.Any())
	}
}

func slogLevel(l slog.Level) zerolog.Level {
	switch {
	case l < slog.LevelDebug:
		return zerolog.TraceLevel
	case l < slog.LevelInfo:
		return zerolog.DebugLevel
	case l < slog.LevelWarn:
		return zerolog.InfoLevel
	case l < slog.LevelError:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}
