// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package eventprocessor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	natsgo "github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/byron-allsourcedata/Allsource-sub001/internal/logging"
)

// Components holds every messaging component of a filler for lifecycle
// management. Connect brings up the transport, RegisterJobHandler wires the
// request consumer, Start runs it and Shutdown tears everything down in
// reverse order.
type Components struct {
	cfg    Config
	wmLog  watermill.LoggerAdapter
	health *HealthChecker

	server     *EmbeddedServer
	natsConn   *natsgo.Conn
	stream     *StreamInitializer
	publisher  *Publisher
	subscriber *Subscriber
	router     *Router
	handler    *JobHandler

	mu       sync.Mutex
	running  bool
	stopped  bool
	routerWG sync.WaitGroup
}

// Connect starts the embedded server when configured, ensures the stream
// exists and creates the publisher.
func Connect(ctx context.Context, cfg Config) (*Components, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Components{
		cfg:    cfg,
		wmLog:  watermill.NewSlogLogger(logging.NewSlogLoggerFor("watermill")),
		health: NewHealthChecker(0),
	}

	url := cfg.Publisher.URL
	if cfg.EmbeddedServer {
		server, err := NewEmbeddedServer(&cfg.Server)
		if err != nil {
			return nil, err
		}
		c.server = server
		c.health.RegisterComponent("nats_server", server)
		url = server.ClientURL()
		logging.Info().Str("url", url).Msg("Embedded NATS server started")
	} else {
		logging.Info().Str("url", url).Msg("Using external NATS server")
	}
	c.cfg.Publisher.URL = url
	c.cfg.Subscriber.URL = url

	stream, nc, err := InitStream(ctx, url, &c.cfg.Stream)
	if err != nil {
		c.Shutdown(context.Background())
		return nil, fmt.Errorf("ensure stream exists: %w", err)
	}
	c.stream = stream
	c.natsConn = nc
	c.health.RegisterComponent("stream", stream)
	logging.Info().
		Str("name", c.cfg.Stream.Name).
		Strs("subjects", c.cfg.Stream.Subjects).
		Msg("JetStream stream ready")

	publisher, err := NewPublisher(c.cfg.Publisher, c.wmLog)
	if err != nil {
		c.Shutdown(context.Background())
		return nil, err
	}
	publisher.SetCircuitBreaker(NewCircuitBreaker(cfg.CircuitBreaker))
	publisher.SetCompletedTopic(cfg.CompletedTopic)
	c.publisher = publisher
	c.health.RegisterComponent("publisher", publisher)

	return c, nil
}

// Publisher returns the shared publisher.
func (c *Components) Publisher() *Publisher {
	return c.publisher
}

// Health returns the checker covering all messaging components.
func (c *Components) Health() *HealthChecker {
	return c.health
}

// Handler returns the job handler, or nil before RegisterJobHandler.
func (c *Components) Handler() *JobHandler {
	return c.handler
}

// RegisterJobHandler creates the request subscriber and the router that
// feeds it to runner.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func (c *Components) RegisterJobHandler(runner JobRunner, logger zerolog.Logger) error {
	if c.publisher == nil {
		return ErrNilPublisher
	}
	handler, err := NewJobHandler(runner, logger)
	if err != nil {
		return err
	}

	subscriber, err := NewSubscriber(&c.cfg.Subscriber, c.wmLog)
	if err != nil {
		return err
	}

	router, err := NewRouter(&c.cfg.Router, c.publisher.WatermillPublisher(), c.wmLog)
	if err != nil {
		_ = subscriber.Close()
		return err
	}
	router.AddConsumerHandler("lookalike-jobs", c.cfg.RequestTopic, subscriber, handler.Handle)

	c.handler = handler
	c.subscriber = subscriber
	c.router = router
	c.health.RegisterComponent("router", router)
	return nil
}

// Start runs the router and returns once it is consuming.
func (c *Components) Start(ctx context.Context) error {
	if c.router == nil {
		return errors.New("no job handler registered")
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return errors.New("messaging components were shut down")
	}
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.mu.Unlock()

	errCh := make(chan error, 1)
	c.routerWG.Add(1)
	go func() {
		defer c.routerWG.Done()
		errCh <- c.router.Run(ctx)
	}()

	select {
	case <-c.router.Running():
		logging.Info().Str("topic", c.cfg.RequestTopic).Msg("Job request consumer started")
		return nil
	case err := <-errCh:
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return fmt.Errorf("router stopped during start: %w", err)
	case <-ctx.Done():
		return fmt.Errorf("context canceled while starting router: %w", ctx.Err())
	}
}

// Shutdown stops the router, then closes subscriber, publisher, connection
// and embedded server.
func (c *Components) Shutdown(ctx context.Context) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.running = false
	c.mu.Unlock()

	if c.router != nil {
		if err := c.router.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing router")
		}
		c.routerWG.Wait()
	}
	if c.subscriber != nil {
		if err := c.subscriber.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing subscriber")
		}
	}
	if c.publisher != nil {
		if err := c.publisher.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing publisher")
		}
	}
	if c.natsConn != nil {
		c.natsConn.Close()
	}
	if c.server != nil {
		if err := c.server.Shutdown(ctx); err != nil {
			logging.Error().Err(err).Msg("Error shutting down NATS server")
		}
	}
	logging.Info().Msg("NATS components stopped")
}

// IsRunning returns whether the request consumer is active.
func (c *Components) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
