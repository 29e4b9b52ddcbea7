// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package eventprocessor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
)

// RouterConfig holds configuration for the Watermill Router.
type RouterConfig struct {
	// CloseTimeout is how long to wait for handlers to finish when closing.
	CloseTimeout time.Duration

	RetryMaxRetries      int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RetryMultiplier      float64

	// ThrottlePerSecond limits handled messages per second; 0 disables.
	ThrottlePerSecond int64

	// PoisonQueueTopic receives messages that can never be processed.
	// Empty disables the poison queue.
	PoisonQueueTopic string
}

// DefaultRouterConfig returns production defaults for the Router.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		CloseTimeout:         30 * time.Second,
		RetryMaxRetries:      3,
		RetryInitialInterval: time.Second,
		RetryMaxInterval:     time.Minute,
		RetryMultiplier:      2.0,
		ThrottlePerSecond:    0,
		PoisonQueueTopic:     "lookalike.poison",
	}
}

// RouterMetrics holds runtime counters of the Router.
type RouterMetrics struct {
	MessagesReceived  atomic.Int64
	MessagesProcessed atomic.Int64
	MessagesFailed    atomic.Int64
}

// Router wraps the Watermill Router with the middleware every lookalike
// handler needs: panic recovery, retries with backoff, optional throttling
// and a poison queue for permanent failures.
type Router struct {
	router   *message.Router
	config   RouterConfig
	logger   watermill.LoggerAdapter
	running  atomic.Bool
	mu       sync.Mutex
	handlers map[string]*message.Handler
	counters *RouterMetrics
}

// NewRouter creates a Router. poisonPublisher may be nil when the poison
// queue is disabled.
//
// Middleware order, outermost first: counters, Recoverer, Retry, Throttle,
// PoisonQueue. Permanent errors are diverted to the poison queue before
// Retry sees them; anything else is retried and then nacked for JetStream
// redelivery.
func NewRouter(cfg *RouterConfig, poisonPublisher message.Publisher, logger watermill.LoggerAdapter) (*Router, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	if cfg == nil {
		defaultCfg := DefaultRouterConfig()
		cfg = &defaultCfg
	}

	wmRouter, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}

	r := &Router{
		router:   wmRouter,
		config:   *cfg,
		logger:   logger,
		handlers: make(map[string]*message.Handler),
		counters: &RouterMetrics{},
	}

	wmRouter.AddMiddleware(r.countMiddleware)
	wmRouter.AddMiddleware(middleware.Recoverer)

	retry := middleware.Retry{
		MaxRetries:      cfg.RetryMaxRetries,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
		Multiplier:      cfg.RetryMultiplier,
		Logger:          logger,
		ShouldRetry: func(params middleware.RetryParams) bool {
			return !IsPermanentError(params.Err)
		},
	}
	wmRouter.AddMiddleware(retry.Middleware)

	if cfg.ThrottlePerSecond > 0 {
		throttle := middleware.NewThrottle(cfg.ThrottlePerSecond, time.Second)
		wmRouter.AddMiddleware(throttle.Middleware)
	}

	if poisonPublisher != nil && cfg.PoisonQueueTopic != "" {
		poisonQueue, err := middleware.PoisonQueueWithFilter(poisonPublisher, cfg.PoisonQueueTopic, IsPermanentError)
		if err != nil {
			return nil, fmt.Errorf("create poison queue middleware: %w", err)
		}
		wmRouter.AddMiddleware(poisonQueue)
	}

	return r, nil
}

func (r *Router) countMiddleware(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		r.counters.MessagesReceived.Add(1)
		out, err := h(msg)
		if err != nil {
			r.counters.MessagesFailed.Add(1)
		} else {
			r.counters.MessagesProcessed.Add(1)
		}
		return out, err
	}
}

// AddConsumerHandler registers a handler that doesn't produce output messages.
func (r *Router) AddConsumerHandler(
	name string,
	subscribeTopic string,
	subscriber message.Subscriber,
	handler message.NoPublishHandlerFunc,
) *message.Handler {
	h := r.router.AddConsumerHandler(name, subscribeTopic, subscriber, handler)

	r.mu.Lock()
	r.handlers[name] = h
	r.mu.Unlock()
	return h
}

// Run starts the router and blocks until context cancellation or Close().
func (r *Router) Run(ctx context.Context) error {
	r.running.Store(true)
	defer r.running.Store(false)
	return r.router.Run(ctx)
}

// Running returns a channel that closes when the router is running.
func (r *Router) Running() <-chan struct{} {
	return r.router.Running()
}

// Close gracefully stops the router, waiting up to CloseTimeout for
// in-flight messages.
func (r *Router) Close() error {
	return r.router.Close()
}

// IsRunning returns whether the router is currently processing messages.
func (r *Router) IsRunning() bool {
	return r.running.Load()
}

// Metrics returns the router counters.
func (r *Router) Metrics() *RouterMetrics {
	return r.counters
}

// HealthCheck implements HealthCheckable.
func (r *Router) HealthCheck(ctx context.Context) ComponentHealth {
	health := ComponentHealth{
		Name:      "router",
		LastCheck: time.Now(),
		Details:   make(map[string]interface{}),
	}

	if !r.IsRunning() {
		health.Error = "router is not running"
		return health
	}

	r.mu.Lock()
	handlers := len(r.handlers)
	r.mu.Unlock()

	health.Healthy = true
	health.Message = "router is running"
	health.Details["handlers"] = handlers
	health.Details["messages_received"] = r.counters.MessagesReceived.Load()
	health.Details["messages_processed"] = r.counters.MessagesProcessed.Load()
	health.Details["messages_failed"] = r.counters.MessagesFailed.Load()
	return health
}
