// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package services

import (
	"context"
	"time"

	"github.com/byron-allsourcedata/Allsource-sub001/internal/logging"
)

// PeriodicService runs a maintenance task on a fixed interval, such as
// badger value-log GC or sweeping expired cache entries. Task errors are
// logged and do not stop the loop.
type PeriodicService struct {
	name     string
	interval time.Duration
	task     func(ctx context.Context) error
}

// NewPeriodicService creates the service. A non-positive interval defaults
// to 5 minutes.
func NewPeriodicService(name string, interval time.Duration, task func(ctx context.Context) error) *PeriodicService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &PeriodicService{name: name, interval: interval, task: task}
}

// Serve implements suture.Service.
func (s *PeriodicService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.task(ctx); err != nil {
				logging.Warn().Err(err).Str("service", s.name).Msg("Periodic task failed")
			}
		}
	}
}

// String implements fmt.Stringer for suture's logs.
func (s *PeriodicService) String() string {
	return s.name
}
