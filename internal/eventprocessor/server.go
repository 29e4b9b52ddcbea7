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

	"github.com/nats-io/nats-server/v2/server"
)

// EmbeddedServer runs a JetStream-enabled NATS server in process, for
// single-node deployments and tests.
type EmbeddedServer struct {
	server    *server.Server
	config    ServerConfig
	clientURL string
}

// NewEmbeddedServer creates and starts an embedded NATS server.
// A Port of -1 picks a random free port.
func NewEmbeddedServer(cfg *ServerConfig) (*EmbeddedServer, error) {
	opts := &server.Options{
		ServerName:         "lookalike-filler",
		Host:               cfg.Host,
		Port:               cfg.Port,
		JetStream:          true,
		StoreDir:           cfg.StoreDir,
		JetStreamMaxMemory: cfg.JetStreamMaxMem,
		JetStreamMaxStore:  cfg.JetStreamMaxStore,
		NoSigs:             true,
		NoLog:              true,
		MaxPayload:         8 * 1024 * 1024,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(30 * time.Second) {
		ns.Shutdown()
		return nil, errors.New("NATS server not ready within timeout")
	}

	return &EmbeddedServer{
		server:    ns,
		config:    *cfg,
		clientURL: ns.ClientURL(),
	}, nil
}

// ClientURL returns the connection URL for clients.
func (s *EmbeddedServer) ClientURL() string {
	return s.clientURL
}

// Shutdown stops the server and waits for it to exit or ctx to end.
func (s *EmbeddedServer) Shutdown(ctx context.Context) error {
	s.server.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.WaitForShutdown()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning returns server health status.
func (s *EmbeddedServer) IsRunning() bool {
	return s.server.Running()
}

// JetStreamEnabled returns whether JetStream is enabled.
func (s *EmbeddedServer) JetStreamEnabled() bool {
	return s.server.JetStreamEnabled()
}

// HealthCheck implements HealthCheckable.
func (s *EmbeddedServer) HealthCheck(ctx context.Context) ComponentHealth {
	health := ComponentHealth{Name: "nats_server", LastCheck: time.Now()}
	switch {
	case !s.IsRunning():
		health.Error = "embedded NATS server is not running"
	case !s.JetStreamEnabled():
		health.Error = "JetStream is disabled"
	default:
		health.Healthy = true
		health.Message = s.clientURL
	}
	return health
}
