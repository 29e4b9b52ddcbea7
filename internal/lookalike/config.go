// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package lookalike

import (
	"fmt"
	"time"

	"github.com/byron-allsourcedata/Allsource-sub001/internal/lookalike/model"
)

// Config holds pipeline tuning.
type Config struct {
	// Workers is the number of concurrently scored partitions.
	Workers int `json:"workers"`

	// BlockSize is the number of rows delivered per scan block.
	BlockSize int `json:"block_size"`

	// BulkSize is the number of rows between progress checkpoints.
	BulkSize int `json:"bulk_size"`

	// RowLimit caps rows per partition; 0 scans everything.
	RowLimit int `json:"row_limit"`

	// WorkerTimeout bounds one partition; exceeding it fails the job. 0 disables.
	WorkerTimeout time.Duration `json:"worker_timeout"`

	// SeedPageSize is the page size when reading seed members.
	SeedPageSize int `json:"seed_page_size"`

	// AuditDir receives simple-mode audit CSVs; empty disables them.
	AuditDir string `json:"audit_dir"`

	// NotifyTimeout bounds the completion notification.
	NotifyTimeout time.Duration `json:"notify_timeout"`

	Training      model.Params              `json:"training"`
	Normalization model.NormalizationConfig `json:"normalization"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Workers:       8,
		BlockSize:     50_000,
		BulkSize:      100_000,
		RowLimit:      0,
		WorkerTimeout: 2 * time.Hour,
		SeedPageSize:  5000,
		NotifyTimeout: 10 * time.Second,
		Training:      model.DefaultParams(),
	}
}

// Validate checks configuration values.
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.Workers > BucketCount {
		return fmt.Errorf("workers must be at most %d, got %d", BucketCount, c.Workers)
	}
	if c.BlockSize <= 0 {
		return fmt.Errorf("block_size must be positive, got %d", c.BlockSize)
	}
	if c.BulkSize <= 0 {
		return fmt.Errorf("bulk_size must be positive, got %d", c.BulkSize)
	}
	if c.RowLimit < 0 {
		return fmt.Errorf("row_limit must be non-negative, got %d", c.RowLimit)
	}
	if c.WorkerTimeout < 0 {
		return fmt.Errorf("worker_timeout must be non-negative, got %s", c.WorkerTimeout)
	}
	if c.SeedPageSize <= 0 {
		return fmt.Errorf("seed_page_size must be positive, got %d", c.SeedPageSize)
	}
	if err := c.Training.Validate(); err != nil {
		return fmt.Errorf("training: %w", err)
	}
	if err := c.Normalization.Validate(); err != nil {
		return fmt.Errorf("normalization: %w", err)
	}
	return nil
}
