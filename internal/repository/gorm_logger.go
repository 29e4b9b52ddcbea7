// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/byron-allsourcedata/Allsource-sub001/internal/logging"
)

// GormLogger routes gorm's logging through the zerolog logger. Record-not-found
// errors are not logged; statements slower than the threshold are warnings.
type GormLogger struct {
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

// NewGormLogger returns a logger at warn level.
func NewGormLogger(slowThreshold time.Duration) *GormLogger {
	return &GormLogger{level: gormlogger.Warn, slowThreshold: slowThreshold}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *GormLogger) Info(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.logger(ctx).Info().Msg(fmt.Sprintf(msg, args...))
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.logger(ctx).Warn().Msg(fmt.Sprintf(msg, args...))
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.logger(ctx).Error().Msg(fmt.Sprintf(msg, args...))
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)

	switch {
	case err != nil && l.level >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		l.logger(ctx).Error().Err(err).Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("Postgres query failed")
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		sql, rows := fc()
		l.logger(ctx).Warn().Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("Slow Postgres query")
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		l.logger(ctx).Debug().Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("Postgres query")
	}
}

func (l *GormLogger) logger(ctx context.Context) *zerolog.Logger {
	lg := logging.Ctx(ctx).With().Str("component", "gorm").Logger()
	return &lg
}
