// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package services

import (
	"context"
	"fmt"
	"time"
)

// NATSComponentsRunner is the lifecycle of *eventprocessor.Components.
type NATSComponentsRunner interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context)
	IsRunning() bool
}

// NATSComponentsService runs the job consumer under suture: Start, wait for
// cancellation, then Shutdown with a bounded context.
type NATSComponentsService struct {
	components      NATSComponentsRunner
	shutdownTimeout time.Duration
	name            string
}

// NewNATSComponentsService wraps components. A non-positive shutdownTimeout
// defaults to 10s. In-flight jobs are not waited for beyond it; their
// requests stay unacked and are redelivered.
func NewNATSComponentsService(components NATSComponentsRunner, shutdownTimeout time.Duration) *NATSComponentsService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &NATSComponentsService{
		components:      components,
		shutdownTimeout: shutdownTimeout,
		name:            "job-consumer",
	}
}

// Serve implements suture.Service.
func (s *NATSComponentsService) Serve(ctx context.Context) error {
	if err := s.components.Start(ctx); err != nil {
		return fmt.Errorf("job consumer start failed: %w", err)
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	s.components.Shutdown(shutdownCtx)

	return ctx.Err()
}

// String implements fmt.Stringer for suture's logs.
func (s *NATSComponentsService) String() string {
	return s.name
}
