// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package lookalike

import (
	"math"
	"sort"
	"time"
)

// SimilarityStats summarizes the final lookalike scores. All fields are nil
// when there are no scores.
type SimilarityStats struct {
	Min     *float64 `json:"min"`
	Max     *float64 `json:"max"`
	Average *float64 `json:"average"`
	Median  *float64 `json:"median"`
}

// ComputeStats returns min/max/average/median of scores.
func ComputeStats(scores []float64) SimilarityStats {
	if len(scores) == 0 {
		return SimilarityStats{}
	}

	sorted := make([]float64, len(scores))
	copy(sorted, scores)
	sort.Float64s(sorted)

	var sum float64
	for _, s := range sorted {
		sum += s
	}

	n := len(sorted)
	minV := sorted[0]
	maxV := sorted[n-1]
	avg := sum / float64(n)
	var median float64
	if n%2 == 1 {
		median = sorted[n/2]
	} else {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return SimilarityStats{Min: &minV, Max: &maxV, Average: &avg, Median: &median}
}

// Progress is the pollable completion estimate of a running job.
type Progress struct {
	JobID                   string        `json:"job_id"`
	Status                  JobStatus     `json:"status"`
	DatasetSize             int64         `json:"dataset_size"`
	ProcessedSize           int64         `json:"processed_size"`
	TrainModelSize          int64         `json:"train_model_size"`
	ProcessedTrainModelSize int64         `json:"processed_train_model_size"`
	Percent                 float64       `json:"percent"`
	ETA                     time.Duration `json:"eta_ns"`
}

// ComputeProgress derives percentage and ETA from the job counters.
// Training and scanning are weighted by their row counts.
func ComputeProgress(job *Job, now time.Time) Progress {
	p := Progress{
		JobID:                   job.ID,
		Status:                  job.Status,
		DatasetSize:             job.DatasetSize,
		ProcessedSize:           job.ProcessedSize,
		TrainModelSize:          job.TrainModelSize,
		ProcessedTrainModelSize: job.ProcessedTrainModelSize,
	}
	if job.Status == StatusCompleted {
		p.Percent = 100
		return p
	}

	total := job.DatasetSize + job.TrainModelSize
	if total <= 0 {
		return p
	}
	done := min(job.ProcessedSize, job.DatasetSize) + min(job.ProcessedTrainModelSize, job.TrainModelSize)
	frac := float64(done) / float64(total)
	p.Percent = math.Round(frac*10000) / 100

	if job.StartedAt != nil && frac > 0 && frac < 1 {
		elapsed := now.Sub(*job.StartedAt)
		if elapsed > 0 {
			p.ETA = time.Duration(float64(elapsed) * (1 - frac) / frac)
		}
	}
	return p
}
