// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package config

import (
	"time"

	"github.com/byron-allsourcedata/Allsource-sub001/internal/lookalike"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/lookalike/model"
)

// Config is the complete service configuration.
type Config struct {
	Database    DatabaseConfig    `koanf:"database"`
	Postgres    PostgresConfig    `koanf:"postgres"`
	NATS        NATSConfig        `koanf:"nats"`
	Redis       RedisConfig       `koanf:"redis"`
	ObjectStore ObjectStoreConfig `koanf:"object_store"`
	Lookalike   LookalikeConfig   `koanf:"lookalike"`
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// DatabaseConfig configures the DuckDB identity graph and score store.
type DatabaseConfig struct {
	Path                   string        `koanf:"path"`
	MaxMemory              string        `koanf:"max_memory"`
	Threads                int           `koanf:"threads"` // 0 = runtime.NumCPU()
	PreserveInsertionOrder bool          `koanf:"preserve_insertion_order"`
	IdentityTable          string        `koanf:"identity_table"`
	ScoreTable             string        `koanf:"score_table"`
	QueryTimeout           time.Duration `koanf:"query_timeout"`
}

// PostgresConfig configures the relational store holding jobs, sources and
// the lookalike output table.
type PostgresConfig struct {
	DSN             string        `koanf:"dsn"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	SlowThreshold   time.Duration `koanf:"slow_threshold"`
}

// NATSConfig configures job intake and completion events.
type NATSConfig struct {
	Enabled        bool   `koanf:"enabled"`
	URL            string `koanf:"url"`
	EmbeddedServer bool   `koanf:"embedded_server"`
	StoreDir       string `koanf:"store_dir"`
	MaxMemory      int64  `koanf:"max_memory"`
	MaxStore       int64  `koanf:"max_store"`

	StreamName     string        `koanf:"stream_name"`
	RequestTopic   string        `koanf:"request_topic"`
	CompletedTopic string        `koanf:"completed_topic"`
	DurableName    string        `koanf:"durable_name"`
	QueueGroup     string        `koanf:"queue_group"`
	Subscribers    int           `koanf:"subscribers"`
	AckWaitTimeout time.Duration `koanf:"ack_wait_timeout"`
	MaxDeliver     int           `koanf:"max_deliver"`

	RouterRetryCount           int           `koanf:"router_retry_count"`
	RouterRetryInitialInterval time.Duration `koanf:"router_retry_initial_interval"`
	RouterPoisonQueueEnabled   bool          `koanf:"router_poison_queue_enabled"`
	RouterPoisonQueueTopic     string        `koanf:"router_poison_queue_topic"`
	RouterCloseTimeout         time.Duration `koanf:"router_close_timeout"`
}

// RedisConfig configures the per-user notification channel.
type RedisConfig struct {
	Enabled     bool          `koanf:"enabled"`
	Addr        string        `koanf:"addr"`
	Password    string        `koanf:"password"`
	DB          int           `koanf:"db"`
	DialTimeout time.Duration `koanf:"dial_timeout"`
}

// ObjectStoreConfig configures artifact uploads to an S3-compatible store.
type ObjectStoreConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Endpoint  string `koanf:"endpoint"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	Bucket    string `koanf:"bucket"`
	Region    string `koanf:"region"`
	UseSSL    bool   `koanf:"use_ssl"`
}

// LookalikeConfig tunes the scoring pipeline.
type LookalikeConfig struct {
	Workers       int           `koanf:"workers"`
	BlockSize     int           `koanf:"block_size"`
	BulkSize      int           `koanf:"bulk_size"`
	RowLimit      int           `koanf:"row_limit"`
	WorkerTimeout time.Duration `koanf:"worker_timeout"`
	SeedPageSize  int           `koanf:"seed_page_size"`
	NotifyTimeout time.Duration `koanf:"notify_timeout"`

	// AuditDir receives simple-mode audit CSVs; empty disables them.
	AuditDir string `koanf:"audit_dir"`
	// ModelDir stores trained models.
	ModelDir string `koanf:"model_dir"`
	// CacheDir holds finished partitions for resume; empty disables the cache.
	CacheDir string        `koanf:"cache_dir"`
	CacheTTL time.Duration `koanf:"cache_ttl"`

	Training      model.Params              `koanf:"training"`
	Normalization model.NormalizationConfig `koanf:"normalization"`
}

// Pipeline converts the section to the pipeline's own configuration.
func (c *LookalikeConfig) Pipeline() lookalike.Config {
	return lookalike.Config{
		Workers:       c.Workers,
		BlockSize:     c.BlockSize,
		BulkSize:      c.BulkSize,
		RowLimit:      c.RowLimit,
		WorkerTimeout: c.WorkerTimeout,
		SeedPageSize:  c.SeedPageSize,
		AuditDir:      c.AuditDir,
		NotifyTimeout: c.NotifyTimeout,
		Training:      c.Training,
		Normalization: c.Normalization,
	}
}

// ServerConfig configures the internal status server.
type ServerConfig struct {
	Enabled           bool          `koanf:"enabled"`
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port"`
	Timeout           time.Duration `koanf:"timeout"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}
