// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package eventprocessor

import (
	"fmt"
	"strings"
	"time"

	"github.com/byron-allsourcedata/Allsource-sub001/internal/config"
)

// Config bundles the settings of every messaging component, derived from the
// nats section of the application configuration.
type Config struct {
	Server         ServerConfig
	Publisher      PublisherConfig
	Subscriber     SubscriberConfig
	Stream         StreamConfig
	Router         RouterConfig
	CircuitBreaker CircuitBreakerConfig

	RequestTopic   string
	CompletedTopic string
	EmbeddedServer bool
}

// NewConfig derives component settings from the application configuration.
func NewConfig(cfg *config.NATSConfig) Config {
	pub := DefaultPublisherConfig(cfg.URL)

	sub := DefaultSubscriberConfig(cfg.URL)
	sub.DurableName = cfg.DurableName
	sub.QueueGroup = cfg.QueueGroup
	sub.SubscribersCount = cfg.Subscribers
	sub.AckWaitTimeout = cfg.AckWaitTimeout
	sub.MaxDeliver = cfg.MaxDeliver
	sub.MaxAckPending = max(cfg.Subscribers, 1)
	sub.StreamName = cfg.StreamName

	stream := DefaultStreamConfig()
	stream.Name = cfg.StreamName
	stream.Subjects = streamSubjects(cfg.RequestTopic, cfg.CompletedTopic, cfg.RouterPoisonQueueTopic)

	srv := DefaultServerConfig()
	srv.StoreDir = cfg.StoreDir
	srv.JetStreamMaxMem = cfg.MaxMemory
	srv.JetStreamMaxStore = cfg.MaxStore

	router := DefaultRouterConfig()
	router.CloseTimeout = cfg.RouterCloseTimeout
	router.RetryMaxRetries = cfg.RouterRetryCount
	router.RetryInitialInterval = cfg.RouterRetryInitialInterval
	router.PoisonQueueTopic = ""
	if cfg.RouterPoisonQueueEnabled {
		router.PoisonQueueTopic = cfg.RouterPoisonQueueTopic
	}

	return Config{
		Server:         srv,
		Publisher:      pub,
		Subscriber:     sub,
		Stream:         stream,
		Router:         router,
		CircuitBreaker: DefaultCircuitBreakerConfig("nats-publisher"),
		RequestTopic:   cfg.RequestTopic,
		CompletedTopic: cfg.CompletedTopic,
		EmbeddedServer: cfg.EmbeddedServer,
	}
}

// streamSubjects returns one wildcard per topic prefix, so request, completion
// and poison subjects all land in the stream.
func streamSubjects(topics ...string) []string {
	seen := make(map[string]bool)
	var subjects []string
	for _, t := range topics {
		if t == "" {
			continue
		}
		subject := t
		if i := strings.IndexByte(t, '.'); i > 0 {
			subject = t[:i] + ".>"
		}
		if !seen[subject] {
			seen[subject] = true
			subjects = append(subjects, subject)
		}
	}
	return subjects
}

// Validate checks the derived settings.
func (c *Config) Validate() error {
	switch {
	case c.RequestTopic == "":
		return fmt.Errorf("%w: request topic is required", ErrInvalidConfig)
	case c.CompletedTopic == "":
		return fmt.Errorf("%w: completed topic is required", ErrInvalidConfig)
	case c.RequestTopic == c.CompletedTopic:
		return fmt.Errorf("%w: request and completed topics must differ", ErrInvalidConfig)
	case c.Stream.Name == "":
		return fmt.Errorf("%w: stream name is required", ErrInvalidConfig)
	case c.Subscriber.SubscribersCount <= 0:
		return fmt.Errorf("%w: subscribers must be positive", ErrInvalidConfig)
	case c.Subscriber.AckWaitTimeout <= 0:
		return fmt.Errorf("%w: ack wait timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// ServerConfig holds embedded NATS server configuration.
type ServerConfig struct {
	Host              string
	Port              int
	StoreDir          string
	JetStreamMaxMem   int64
	JetStreamMaxStore int64
}

// DefaultServerConfig returns production defaults for embedded NATS server.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:              "127.0.0.1",
		Port:              4222,
		StoreDir:          "/data/nats/jetstream",
		JetStreamMaxMem:   256 << 20,
		JetStreamMaxStore: 2 << 30,
	}
}

// PublisherConfig holds publisher configuration.
type PublisherConfig struct {
	URL              string
	MaxReconnects    int
	ReconnectWait    time.Duration
	ReconnectBuffer  int
	EnableTrackMsgID bool // nolint:revive // ID is correct per Go conventions
}

// DefaultPublisherConfig returns production defaults for publisher.
func DefaultPublisherConfig(url string) PublisherConfig {
	return PublisherConfig{
		URL:              url,
		MaxReconnects:    -1, // Unlimited
		ReconnectWait:    2 * time.Second,
		ReconnectBuffer:  8 * 1024 * 1024,
		EnableTrackMsgID: true,
	}
}

// SubscriberConfig holds subscriber configuration.
type SubscriberConfig struct {
	URL              string
	DurableName      string
	QueueGroup       string
	SubscribersCount int
	// AckWaitTimeout must outlast a whole job: the request is acked only
	// after the pipeline returns.
	AckWaitTimeout time.Duration
	MaxDeliver     int
	MaxAckPending  int
	CloseTimeout   time.Duration
	MaxReconnects  int
	ReconnectWait  time.Duration
	// StreamName binds the subscriber to an existing stream and disables
	// auto provisioning.
	StreamName string
}

// DefaultSubscriberConfig returns production defaults for subscriber.
func DefaultSubscriberConfig(url string) SubscriberConfig {
	return SubscriberConfig{
		URL:              url,
		DurableName:      "lookalike-filler",
		QueueGroup:       "lookalike-fillers",
		SubscribersCount: 1,
		AckWaitTimeout:   3 * time.Hour,
		MaxDeliver:       5,
		MaxAckPending:    1,
		CloseTimeout:     30 * time.Second,
		MaxReconnects:    -1,
		ReconnectWait:    2 * time.Second,
	}
}

// StreamConfig defines lookalike stream settings.
type StreamConfig struct {
	Name            string
	Subjects        []string
	MaxAge          time.Duration
	MaxBytes        int64
	MaxMsgs         int64
	DuplicateWindow time.Duration
	Replicas        int
}

// DefaultStreamConfig returns production stream configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Name:            "LOOKALIKE",
		Subjects:        []string{"lookalike.>"},
		MaxAge:          7 * 24 * time.Hour,
		MaxBytes:        1 << 30,
		MaxMsgs:         -1,
		DuplicateWindow: 2 * time.Minute,
		Replicas:        1,
	}
}

// CircuitBreakerConfig holds circuit breaker settings.
type CircuitBreakerConfig struct {
	Name             string
	MaxRequests      uint32        // Allowed in half-open state
	Interval         time.Duration // Reset interval for counts
	Timeout          time.Duration // Time to stay open
	FailureThreshold uint32        // Failures before opening
}

// DefaultCircuitBreakerConfig returns production defaults.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
	}
}
