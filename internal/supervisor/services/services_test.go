// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package services

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

var (
	_ suture.Service = (*HTTPServerService)(nil)
	_ suture.Service = (*NATSComponentsService)(nil)
	_ suture.Service = (*PeriodicService)(nil)
)

type mockHTTPServer struct {
	listenErr error
	shutdowns atomic.Int32
	started   chan struct{}
	stopCh    chan struct{}
}

func newMockHTTPServer() *mockHTTPServer {
	return &mockHTTPServer{started: make(chan struct{}, 1), stopCh: make(chan struct{})}
}

func (m *mockHTTPServer) ListenAndServe() error {
	m.started <- struct{}{}
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.stopCh
	return http.ErrServerClosed
}

func (m *mockHTTPServer) Shutdown(context.Context) error {
	m.shutdowns.Add(1)
	close(m.stopCh)
	return nil
}

func TestHTTPServerService_GracefulShutdown(t *testing.T) {
	server := newMockHTTPServer()
	svc := NewHTTPServerService(server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	<-server.started
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	if server.shutdowns.Load() != 1 {
		t.Errorf("Shutdown calls = %d, want 1", server.shutdowns.Load())
	}
}

func TestHTTPServerService_ListenError(t *testing.T) {
	server := newMockHTTPServer()
	server.listenErr = errors.New("address already in use")
	svc := NewHTTPServerService(server, 0)

	err := svc.Serve(context.Background())
	if err == nil || !errors.Is(err, server.listenErr) {
		t.Errorf("Serve() error = %v, want wrapped listen error", err)
	}
	if svc.shutdownTimeout != 10*time.Second {
		t.Errorf("shutdownTimeout = %v, want 10s", svc.shutdownTimeout)
	}
	if svc.String() != "status-server" {
		t.Errorf("String() = %q", svc.String())
	}
}

type mockComponents struct {
	startErr error
	running  atomic.Bool
	starts   atomic.Int32
	stops    atomic.Int32
}

func (m *mockComponents) Start(context.Context) error {
	m.starts.Add(1)
	if m.startErr != nil {
		return m.startErr
	}
	m.running.Store(true)
	return nil
}

func (m *mockComponents) Shutdown(context.Context) {
	m.stops.Add(1)
	m.running.Store(false)
}

func (m *mockComponents) IsRunning() bool { return m.running.Load() }

func TestNATSComponentsService(t *testing.T) {
	comps := &mockComponents{}
	svc := NewNATSComponentsService(comps, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.Now().Add(time.Second)
	for !comps.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !comps.IsRunning() {
		t.Fatal("components were not started")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() error = %v", err)
	}
	if comps.IsRunning() || comps.stops.Load() != 1 {
		t.Errorf("running = %v, stops = %d", comps.IsRunning(), comps.stops.Load())
	}
}

func TestNATSComponentsService_StartError(t *testing.T) {
	comps := &mockComponents{startErr: errors.New("stream unavailable")}
	svc := NewNATSComponentsService(comps, 0)

	err := svc.Serve(context.Background())
	if !errors.Is(err, comps.startErr) {
		t.Errorf("Serve() error = %v, want start error", err)
	}
	if comps.stops.Load() != 0 {
		t.Error("Shutdown should not be called when Start fails")
	}
}

func TestPeriodicService(t *testing.T) {
	var runs atomic.Int32
	svc := NewPeriodicService("cache-gc", 10*time.Millisecond, func(context.Context) error {
		if runs.Add(1) == 1 {
			return errors.New("nothing to collect")
		}
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Serve() error = %v", err)
	}
	if runs.Load() < 3 {
		t.Errorf("task runs = %d, want >= 3 (errors must not stop the loop)", runs.Load())
	}
}

func TestNewPeriodicService_DefaultInterval(t *testing.T) {
	svc := NewPeriodicService("sweep", 0, func(context.Context) error { return nil })
	if svc.interval != 5*time.Minute || svc.String() != "sweep" {
		t.Errorf("service = %+v", svc)
	}
}
