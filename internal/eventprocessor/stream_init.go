// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package eventprocessor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// JetStreamContext defines the subset of jetstream.JetStream used by StreamInitializer.
type JetStreamContext interface {
	Stream(ctx context.Context, name string) (jetstream.Stream, error)
	CreateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
	UpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
}

// StreamInitializer creates or updates the lookalike stream before
// publishers and subscribers start.
type StreamInitializer struct {
	js     JetStreamContext
	config StreamConfig
}

// NewStreamInitializer creates a new stream initializer with the given configuration.
func NewStreamInitializer(js JetStreamContext, cfg *StreamConfig) (*StreamInitializer, error) {
	if js == nil {
		return nil, errors.New("JetStream context required")
	}
	if cfg == nil {
		return nil, errors.New("stream config required")
	}
	return &StreamInitializer{js: js, config: *cfg}, nil
}

// EnsureStream creates the stream, or updates it when it already exists.
// Calling it repeatedly is safe.
func (s *StreamInitializer) EnsureStream(ctx context.Context) (jetstream.Stream, error) {
	streamCfg := jetstream.StreamConfig{
		Name:       s.config.Name,
		Subjects:   s.config.Subjects,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     s.config.MaxAge,
		MaxBytes:   s.config.MaxBytes,
		MaxMsgs:    s.config.MaxMsgs,
		Duplicates: s.config.DuplicateWindow,
		Replicas:   s.config.Replicas,
		Storage:    jetstream.FileStorage,
		Discard:    jetstream.DiscardOld,
	}

	_, err := s.js.Stream(ctx, s.config.Name)
	if err == nil {
		stream, err := s.js.UpdateStream(ctx, streamCfg)
		if err != nil {
			return nil, fmt.Errorf("update stream %s: %w", s.config.Name, err)
		}
		return stream, nil
	}

	if errors.Is(err, jetstream.ErrStreamNotFound) {
		stream, err := s.js.CreateStream(ctx, streamCfg)
		if err != nil {
			return nil, fmt.Errorf("create stream %s: %w", s.config.Name, err)
		}
		return stream, nil
	}

	return nil, fmt.Errorf("check stream %s: %w", s.config.Name, err)
}

// IsHealthy checks if the stream exists and is accessible.
func (s *StreamInitializer) IsHealthy(ctx context.Context) bool {
	_, err := s.js.Stream(ctx, s.config.Name)
	return err == nil
}

// HealthCheck implements HealthCheckable.
func (s *StreamInitializer) HealthCheck(ctx context.Context) ComponentHealth {
	health := ComponentHealth{Name: "stream", LastCheck: time.Now()}
	if s.IsHealthy(ctx) {
		health.Healthy = true
		health.Message = s.config.Name
	} else {
		health.Error = "stream " + s.config.Name + " is not reachable"
	}
	return health
}

// InitStream connects to url, makes sure the stream exists and returns the
// initializer for later health checks. The returned connection stays open
// for those checks; close it on shutdown.
func InitStream(ctx context.Context, url string, cfg *StreamConfig) (*StreamInitializer, *nats.Conn, error) {
	nc, err := nats.Connect(url, nats.Name("lookalike-stream-init"))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create JetStream context: %w", err)
	}
	si, err := NewStreamInitializer(js, cfg)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}
	if _, err := si.EnsureStream(ctx); err != nil {
		nc.Close()
		return nil, nil, err
	}
	return si, nc, nil
}
