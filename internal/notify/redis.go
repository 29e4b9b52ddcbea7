// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/byron-allsourcedata/Allsource-sub001/internal/config"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/eventprocessor"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/lookalike"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/metrics"
)

// MessageTypeLookalikeCompleted tags completion messages on user channels.
const MessageTypeLookalikeCompleted = "lookalike_completed"

// Message is the envelope published on a user's channel.
type Message struct {
	Type string               `json:"type"`
	Data lookalike.Completion `json:"data"`
}

// redisPublisher is the part of the go-redis client the notifier uses.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd
	Ping(ctx context.Context) *goredis.StatusCmd
	Close() error
}

// Redis publishes completions to user:<user_id>:notifications.
type Redis struct {
	rdb    redisPublisher
	cb     *gobreaker.CircuitBreaker[interface{}]
	logger zerolog.Logger
}

// UserChannel returns the pub/sub channel of a user.
func UserChannel(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10) + ":notifications"
}

// NewRedis connects to Redis and verifies the connection with a ping.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewRedis(ctx context.Context, cfg *config.RedisConfig, logger zerolog.Logger) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: dialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return newRedis(rdb, logger), nil
}

//nolint:gocritic // zerolog.Logger is designed to be passed by value
func newRedis(rdb redisPublisher, logger zerolog.Logger) *Redis {
	return &Redis{
		rdb:    rdb,
		cb:     eventprocessor.NewCircuitBreaker(eventprocessor.DefaultCircuitBreakerConfig("redis-notifier")),
		logger: logger.With().Str("component", "redis_notifier").Logger(),
	}
}

// NotifyCompleted implements lookalike.Notifier.
func (r *Redis) NotifyCompleted(ctx context.Context, c lookalike.Completion) error {
	raw, err := json.Marshal(Message{Type: MessageTypeLookalikeCompleted, Data: c})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	channel := UserChannel(c.UserID)
	_, err = r.cb.Execute(func() (interface{}, error) {
		return nil, r.rdb.Publish(ctx, channel, raw).Err()
	})
	metrics.RecordNotification("redis", err)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}

	r.logger.Debug().Str("channel", channel).Str("job_id", c.JobID).Msg("Completion published")
	return nil
}

// HealthCheck implements eventprocessor.HealthCheckable.
func (r *Redis) HealthCheck(ctx context.Context) eventprocessor.ComponentHealth {
	health := eventprocessor.ComponentHealth{
		Name:    "redis",
		Details: map[string]interface{}{"circuit_breaker": eventprocessor.CircuitBreakerState(r.cb)},
	}
	if err := r.rdb.Ping(ctx).Err(); err != nil {
		health.Error = err.Error()
		return health
	}
	health.Healthy = true
	if r.cb.State() != gobreaker.StateClosed {
		health.Degraded = true
		health.Message = "circuit breaker " + r.cb.State().String()
	}
	return health
}

// Close closes the Redis client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
