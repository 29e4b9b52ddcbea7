// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package config

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierPattern restricts table names that are interpolated into SQL.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validatePostgres(); err != nil {
		return err
	}
	if err := c.validateNATS(); err != nil {
		return err
	}
	if err := c.validateRedis(); err != nil {
		return err
	}
	if err := c.validateObjectStore(); err != nil {
		return err
	}
	if err := c.validateLookalike(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("DUCKDB_PATH is required")
	}
	if !identifierPattern.MatchString(c.Database.IdentityTable) {
		return fmt.Errorf("DUCKDB_IDENTITY_TABLE %q is not a valid identifier", c.Database.IdentityTable)
	}
	if !identifierPattern.MatchString(c.Database.ScoreTable) {
		return fmt.Errorf("DUCKDB_SCORE_TABLE %q is not a valid identifier", c.Database.ScoreTable)
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("DUCKDB_THREADS must be non-negative, got %d", c.Database.Threads)
	}
	return nil
}

func (c *Config) validatePostgres() error {
	if c.Postgres.DSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required")
	}
	if c.Postgres.MaxOpenConns <= 0 {
		return fmt.Errorf("POSTGRES_MAX_OPEN_CONNS must be positive, got %d", c.Postgres.MaxOpenConns)
	}
	if c.Postgres.MaxIdleConns < 0 || c.Postgres.MaxIdleConns > c.Postgres.MaxOpenConns {
		return fmt.Errorf("POSTGRES_MAX_IDLE_CONNS must be between 0 and %d, got %d",
			c.Postgres.MaxOpenConns, c.Postgres.MaxIdleConns)
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if err := validateNATSURL(c.NATS.URL); err != nil {
		return fmt.Errorf("NATS_URL is invalid: %w", err)
	}
	for name, topic := range map[string]string{
		"NATS_REQUEST_TOPIC":   c.NATS.RequestTopic,
		"NATS_COMPLETED_TOPIC": c.NATS.CompletedTopic,
	} {
		if topic == "" || strings.ContainsAny(topic, " *>") {
			return fmt.Errorf("%s %q must be a concrete subject", name, topic)
		}
	}
	if c.NATS.StreamName == "" {
		return fmt.Errorf("NATS_STREAM is required")
	}
	if c.NATS.Subscribers <= 0 {
		return fmt.Errorf("NATS_SUBSCRIBERS must be positive, got %d", c.NATS.Subscribers)
	}
	if c.NATS.RouterPoisonQueueEnabled && c.NATS.RouterPoisonQueueTopic == "" {
		return fmt.Errorf("NATS_POISON_TOPIC is required when the poison queue is enabled")
	}
	if c.NATS.RouterRetryCount < 0 {
		return fmt.Errorf("NATS_ROUTER_RETRIES must be non-negative, got %d", c.NATS.RouterRetryCount)
	}
	return nil
}

func (c *Config) validateRedis() error {
	if !c.Redis.Enabled {
		return nil
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("REDIS_ADDR is required when REDIS_ENABLED=true")
	}
	return nil
}

func (c *Config) validateObjectStore() error {
	if !c.ObjectStore.Enabled {
		return nil
	}
	if err := validateEndpoint(c.ObjectStore.Endpoint); err != nil {
		return fmt.Errorf("S3_ENDPOINT is invalid: %w", err)
	}
	if c.ObjectStore.Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required when S3_ENABLED=true")
	}
	if c.ObjectStore.AccessKey == "" || c.ObjectStore.SecretKey == "" {
		return fmt.Errorf("S3_ACCESS_KEY and S3_SECRET_KEY are required when S3_ENABLED=true")
	}
	return nil
}

func (c *Config) validateLookalike() error {
	pc := c.Lookalike.Pipeline()
	if err := pc.Validate(); err != nil {
		return fmt.Errorf("lookalike: %w", err)
	}
	if c.Lookalike.ModelDir == "" {
		return fmt.Errorf("LOOKALIKE_MODEL_DIR is required")
	}
	if c.Lookalike.NotifyTimeout <= 0 {
		return fmt.Errorf("LOOKALIKE_NOTIFY_TIMEOUT must be positive, got %s", c.Lookalike.NotifyTimeout)
	}
	return nil
}

func (c *Config) validateServer() error {
	if !c.Server.Enabled {
		return nil
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimitRequests < 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be non-negative, got %d", c.Server.RateLimitRequests)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
