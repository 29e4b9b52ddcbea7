// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/byron-allsourcedata/Allsource-sub001/internal/lookalike"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/validation"
)

const jobsTable = "audience_lookalikes"

// GetJob loads a job row. A missing row returns lookalike.ErrJobNotFound.
func (r *Repository) GetJob(ctx context.Context, jobID string) (*lookalike.Job, error) {
	defer observe("get_job", jobsTable, time.Now())

	var row LookalikeJob
	if err := r.db.WithContext(ctx).Where("id = ?", jobID).First(&row).Error; err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", lookalike.ErrJobNotFound, jobID)
		}
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return row.toDomain(), nil
}

// CreateJob inserts a job row. Used by tooling and tests; jobs are normally
// created by the web API.
func (r *Repository) CreateJob(ctx context.Context, job *lookalike.Job) error {
	if err := validation.ValidateJob(job); err != nil {
		return fmt.Errorf("invalid job: %w", err)
	}
	row := LookalikeJob{
		ID:                job.ID,
		UserID:            job.UserID,
		SourceID:          job.SourceID,
		LookalikeType:     string(job.Mode),
		LookalikeSize:     string(job.SizeTier),
		SignificantFields: datatypes.NewJSONType(job.SignificantFields),
		Status:            string(lookalike.StatusPending),
	}
	if job.Status != "" {
		row.Status = string(job.Status)
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// MarkRunning moves a job to running and stamps the first start time.
// Completed jobs are left untouched.
func (r *Repository) MarkRunning(ctx context.Context, jobID string) error {
	defer observe("mark_running", jobsTable, time.Now())

	now := time.Now().UTC()
	return r.updateJob(ctx, jobID, map[string]any{
		"status":         string(lookalike.StatusRunning),
		"failure_reason": "",
		"started_at":     gorm.Expr("COALESCE(started_at, ?)", now),
	})
}

// MarkFailed records a failure reason. Completed jobs are left untouched.
func (r *Repository) MarkFailed(ctx context.Context, jobID, reason string) error {
	defer observe("mark_failed", jobsTable, time.Now())

	return r.updateJob(ctx, jobID, map[string]any{
		"status":         string(lookalike.StatusFailed),
		"failure_reason": reason,
	})
}

// MarkCompleted stores the final size and similarity statistics.
func (r *Repository) MarkCompleted(ctx context.Context, jobID string, size int64, stats lookalike.SimilarityStats) error {
	defer observe("mark_completed", jobsTable, time.Now())

	now := time.Now().UTC()
	return r.updateJob(ctx, jobID, map[string]any{
		"status":             string(lookalike.StatusCompleted),
		"failure_reason":     "",
		"size":               size,
		"similarity_min":     stats.Min,
		"similarity_max":     stats.Max,
		"similarity_average": stats.Average,
		"similarity_median":  stats.Median,
		"completed_at":       now,
	})
}

// SetDatasetSize stores the number of identity rows the workers will scan.
func (r *Repository) SetDatasetSize(ctx context.Context, jobID string, size int64) error {
	defer observe("set_dataset_size", jobsTable, time.Now())
	return r.updateJob(ctx, jobID, map[string]any{"dataset_size": size})
}

// SetTrainModelSize stores the number of seed members the trainer will read.
func (r *Repository) SetTrainModelSize(ctx context.Context, jobID string, size int64) error {
	defer observe("set_train_model_size", jobsTable, time.Now())
	return r.updateJob(ctx, jobID, map[string]any{"train_model_size": size})
}

// AddProcessed adds delta to processed_size and returns the new total.
func (r *Repository) AddProcessed(ctx context.Context, jobID string, delta int64) (int64, error) {
	defer observe("add_processed", jobsTable, time.Now())
	return r.increment(ctx, jobID, "processed_size", delta)
}

// AddProcessedTrainModel adds delta to processed_train_model_size and returns
// the new total.
func (r *Repository) AddProcessedTrainModel(ctx context.Context, jobID string, delta int64) (int64, error) {
	defer observe("add_processed_train_model", jobsTable, time.Now())
	return r.increment(ctx, jobID, "processed_train_model_size", delta)
}

// increment applies "column = column + delta" and reads the result back in the
// same transaction. The row lock taken by the UPDATE keeps the read consistent
// with concurrent workers. Non-positive deltas only read.
func (r *Repository) increment(ctx context.Context, jobID, column string, delta int64) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if delta > 0 {
			res := tx.Model(&LookalikeJob{}).
				Where("id = ?", jobID).
				UpdateColumn(column, gorm.Expr(column+" + ?", delta))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return lookalike.ErrJobNotFound
			}
		}
		row := tx.Model(&LookalikeJob{}).Select(column).Where("id = ?", jobID).Row()
		if err := row.Scan(&total); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return lookalike.ErrJobNotFound
			}
			return err
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("increment %s of %s: %w", column, jobID, err)
	}
	return total, nil
}

func (r *Repository) updateJob(ctx context.Context, jobID string, values map[string]any) error {
	values["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&LookalikeJob{}).
		Where("id = ? AND status <> ?", jobID, string(lookalike.StatusCompleted)).
		Updates(values)
	if res.Error != nil {
		return fmt.Errorf("update job %s: %w", jobID, res.Error)
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := r.db.WithContext(ctx).Model(&LookalikeJob{}).Where("id = ?", jobID).Count(&n).Error; err != nil {
			return fmt.Errorf("update job %s: %w", jobID, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", lookalike.ErrJobNotFound, jobID)
		}
	}
	return nil
}
