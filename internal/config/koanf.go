// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/byron-allsourcedata/Allsource-sub001/internal/lookalike"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is not set.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/lookalike/config.yaml",
	"/etc/lookalike/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	pipeline := lookalike.DefaultConfig()
	return &Config{
		Database: DatabaseConfig{
			Path:                   "/data/identity.duckdb",
			MaxMemory:              "4GB",
			Threads:                0,
			PreserveInsertionOrder: false,
			IdentityTable:          "enrichment_users",
			ScoreTable:             "lookalike_scores",
			QueryTimeout:           5 * time.Minute,
		},
		Postgres: PostgresConfig{
			DSN:             "",
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			SlowThreshold:   2 * time.Second,
		},
		NATS: NATSConfig{
			Enabled:        true,
			URL:            "nats://127.0.0.1:4222",
			EmbeddedServer: false,
			StoreDir:       "/data/nats/jetstream",
			MaxMemory:      256 << 20,
			MaxStore:       2 << 30,

			StreamName:     "LOOKALIKE",
			RequestTopic:   "lookalike.requested",
			CompletedTopic: "lookalike.completed",
			DurableName:    "lookalike-filler",
			QueueGroup:     "lookalike-fillers",
			Subscribers:    1,
			AckWaitTimeout: 3 * time.Hour,
			MaxDeliver:     5,

			RouterRetryCount:           3,
			RouterRetryInitialInterval: time.Second,
			RouterPoisonQueueEnabled:   true,
			RouterPoisonQueueTopic:     "lookalike.poison",
			RouterCloseTimeout:         30 * time.Second,
		},
		Redis: RedisConfig{
			Enabled:     false,
			Addr:        "127.0.0.1:6379",
			DB:          0,
			DialTimeout: 5 * time.Second,
		},
		ObjectStore: ObjectStoreConfig{
			Enabled: false,
			Bucket:  "lookalike-artifacts",
			Region:  "us-east-1",
			UseSSL:  true,
		},
		Lookalike: LookalikeConfig{
			Workers:       pipeline.Workers,
			BlockSize:     pipeline.BlockSize,
			BulkSize:      pipeline.BulkSize,
			RowLimit:      pipeline.RowLimit,
			WorkerTimeout: pipeline.WorkerTimeout,
			SeedPageSize:  pipeline.SeedPageSize,
			NotifyTimeout: pipeline.NotifyTimeout,
			AuditDir:      "",
			ModelDir:      "/data/models",
			CacheDir:      "/data/partitions",
			CacheTTL:      48 * time.Hour,
			Training:      pipeline.Training,
		},
		Server: ServerConfig{
			Enabled:           true,
			Host:              "0.0.0.0",
			Port:              8090,
			Timeout:           30 * time.Second,
			RateLimitRequests: 120,
			RateLimitWindow:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file, then the
// environment. The result is validated.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	if err := splitListFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// listPaths accept comma-separated values from the environment.
var listPaths = []string{
	"lookalike.normalization.numeric",
	"lookalike.normalization.categorical",
	"lookalike.normalization.recency",
}

func splitListFields(k *koanf.Koanf) error {
	for _, path := range listPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		var parts []string
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variables to config keys. Variables not
// listed are ignored.
var envMappings = map[string]string{
	"duckdb_path":           "database.path",
	"duckdb_max_memory":     "database.max_memory",
	"duckdb_threads":        "database.threads",
	"duckdb_identity_table": "database.identity_table",
	"duckdb_score_table":    "database.score_table",
	"duckdb_query_timeout":  "database.query_timeout",

	"postgres_dsn":               "postgres.dsn",
	"database_url":               "postgres.dsn",
	"postgres_max_open_conns":    "postgres.max_open_conns",
	"postgres_max_idle_conns":    "postgres.max_idle_conns",
	"postgres_conn_max_lifetime": "postgres.conn_max_lifetime",
	"postgres_slow_threshold":    "postgres.slow_threshold",

	"nats_enabled":          "nats.enabled",
	"nats_url":              "nats.url",
	"nats_embedded":         "nats.embedded_server",
	"nats_store_dir":        "nats.store_dir",
	"nats_max_memory":       "nats.max_memory",
	"nats_max_store":        "nats.max_store",
	"nats_stream":           "nats.stream_name",
	"nats_request_topic":    "nats.request_topic",
	"nats_completed_topic":  "nats.completed_topic",
	"nats_durable_name":     "nats.durable_name",
	"nats_queue_group":      "nats.queue_group",
	"nats_subscribers":      "nats.subscribers",
	"nats_ack_wait":         "nats.ack_wait_timeout",
	"nats_max_deliver":      "nats.max_deliver",
	"nats_router_retries":   "nats.router_retry_count",
	"nats_router_retry":     "nats.router_retry_initial_interval",
	"nats_poison_enabled":   "nats.router_poison_queue_enabled",
	"nats_poison_topic":     "nats.router_poison_queue_topic",
	"nats_router_close_ttl": "nats.router_close_timeout",

	"redis_enabled":      "redis.enabled",
	"redis_addr":         "redis.addr",
	"redis_password":     "redis.password",
	"redis_db":           "redis.db",
	"redis_dial_timeout": "redis.dial_timeout",

	"s3_enabled":    "object_store.enabled",
	"s3_endpoint":   "object_store.endpoint",
	"s3_access_key": "object_store.access_key",
	"s3_secret_key": "object_store.secret_key",
	"s3_bucket":     "object_store.bucket",
	"s3_region":     "object_store.region",
	"s3_use_ssl":    "object_store.use_ssl",

	"lookalike_workers":        "lookalike.workers",
	"lookalike_block_size":     "lookalike.block_size",
	"lookalike_bulk_size":      "lookalike.bulk_size",
	"lookalike_row_limit":      "lookalike.row_limit",
	"lookalike_worker_timeout": "lookalike.worker_timeout",
	"lookalike_seed_page_size": "lookalike.seed_page_size",
	"lookalike_notify_timeout": "lookalike.notify_timeout",
	"lookalike_audit_dir":      "lookalike.audit_dir",
	"lookalike_model_dir":      "lookalike.model_dir",
	"lookalike_cache_dir":      "lookalike.cache_dir",
	"lookalike_cache_ttl":      "lookalike.cache_ttl",
	"lookalike_numeric":        "lookalike.normalization.numeric",
	"lookalike_categorical":    "lookalike.normalization.categorical",
	"lookalike_recency":        "lookalike.normalization.recency",
	"training_rounds":          "lookalike.training.rounds",
	"training_learning_rate":   "lookalike.training.learning_rate",
	"training_max_depth":       "lookalike.training.max_depth",
	"training_min_leaf":        "lookalike.training.min_samples_leaf",
	"training_subsample":       "lookalike.training.subsample",
	"training_test_fraction":   "lookalike.training.test_fraction",
	"training_seed":            "lookalike.training.seed",

	"http_enabled":        "server.enabled",
	"http_host":           "server.host",
	"http_port":           "server.port",
	"http_timeout":        "server.timeout",
	"rate_limit_requests": "server.rate_limit_requests",
	"rate_limit_window":   "server.rate_limit_window",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc returns "" for unmapped variables, which koanf skips.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
