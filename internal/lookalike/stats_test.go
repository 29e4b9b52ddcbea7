// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package lookalike

import (
	"testing"
	"time"
)

func TestComputeStats(t *testing.T) {
	stats := ComputeStats([]float64{4, 1, 3, 2})
	if *stats.Min != 1 || *stats.Max != 4 || *stats.Average != 2.5 || *stats.Median != 2.5 {
		t.Errorf("ComputeStats() = min %v max %v avg %v median %v",
			*stats.Min, *stats.Max, *stats.Average, *stats.Median)
	}

	odd := ComputeStats([]float64{9, 1, 5})
	if *odd.Median != 5 {
		t.Errorf("median = %v, want 5", *odd.Median)
	}
}

func TestComputeStats_Empty(t *testing.T) {
	stats := ComputeStats(nil)
	if stats.Min != nil || stats.Max != nil || stats.Average != nil || stats.Median != nil {
		t.Errorf("ComputeStats(nil) = %+v, want all nil", stats)
	}
}

func TestComputeProgress(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	job := &Job{
		ID:                      "job-1",
		Status:                  StatusRunning,
		DatasetSize:             900,
		ProcessedSize:           300,
		TrainModelSize:          100,
		ProcessedTrainModelSize: 100,
		StartedAt:               &start,
	}

	p := ComputeProgress(job, start.Add(4*time.Minute))
	if p.Percent != 40 {
		t.Errorf("Percent = %v, want 40", p.Percent)
	}
	if d := p.ETA - 6*time.Minute; d < -time.Millisecond || d > time.Millisecond {
		t.Errorf("ETA = %v, want 6m", p.ETA)
	}

	job.Status = StatusCompleted
	if p := ComputeProgress(job, start); p.Percent != 100 {
		t.Errorf("completed Percent = %v, want 100", p.Percent)
	}
}

func TestComputeProgress_NoSizes(t *testing.T) {
	p := ComputeProgress(&Job{ID: "j", Status: StatusPending}, time.Now())
	if p.Percent != 0 || p.ETA != 0 {
		t.Errorf("ComputeProgress() = %+v, want zero", p)
	}
}

func TestValidateTargets(t *testing.T) {
	tests := []struct {
		name    string
		targets []float64
		want    FailureKind
	}{
		{"empty", nil, EmptyDataset},
		{"single row", []float64{3}, InsufficientRows},
		{"constant", []float64{2, 2, 2}, DegenerateTargets},
		{"usable", []float64{1, 2}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTargets(tt.targets)
			if tt.want == 0 {
				if err != nil {
					t.Fatalf("ValidateTargets() error = %v", err)
				}
				return
			}
			tf, ok := AsTrainingFailure(err)
			if !ok || tf.Kind != tt.want {
				t.Errorf("ValidateTargets() = %v, want %s", err, tt.want)
			}
		})
	}
}
