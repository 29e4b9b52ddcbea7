// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package lookalike

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownMode     = errors.New("unknown lookalike mode")
	ErrUnknownSizeTier = errors.New("unknown lookalike size")
	ErrJobNotFound     = errors.New("lookalike job not found")
	ErrModelNotFound   = errors.New("trained model not found")
	ErrNoColumns       = errors.New("no significant field maps to an identity graph column")
	ErrNoDistribution  = errors.New("source has no field distribution")

	// ErrStreamInterrupted marks a read failure after a scan started streaming.
	// Workers keep what they scored before it.
	ErrStreamInterrupted = errors.New("identity graph stream interrupted")

	// ErrWorkerTimeout is returned when a partition exceeds its time budget.
	ErrWorkerTimeout = errors.New("scoring worker timed out")
)

// FailureKind enumerates the terminal seed-audience conditions.
type FailureKind int

const (
	// EmptyDataset: the seed audience has no matched profiles.
	EmptyDataset FailureKind = iota + 1
	// InsufficientRows: fewer than two profiles, no train/test split possible.
	InsufficientRows
	// DegenerateTargets: every profile has the same customer value.
	DegenerateTargets
)

// Reason is the failure reason written to the job row.
func (k FailureKind) Reason() string {
	switch k {
	case EmptyDataset:
		return "empty_train_dataset"
	case InsufficientRows:
		return "less_than_two_train_dataset"
	case DegenerateTargets:
		return "equal_train_targets"
	default:
		return "unknown_training_failure"
	}
}

func (k FailureKind) String() string {
	switch k {
	case EmptyDataset:
		return "EmptyDataset"
	case InsufficientRows:
		return "InsufficientRows"
	case DegenerateTargets:
		return "DegenerateTargets"
	default:
		return fmt.Sprintf("FailureKind(%d)", int(k))
	}
}

// TrainingFailure is a job-terminal condition of the seed audience.
// It is never retried.
type TrainingFailure struct {
	Kind FailureKind
	Rows int
}

func (e *TrainingFailure) Error() string {
	return fmt.Sprintf("training failure %s (rows=%d)", e.Kind, e.Rows)
}

// AsTrainingFailure unwraps a *TrainingFailure from err.
func AsTrainingFailure(err error) (*TrainingFailure, bool) {
	var tf *TrainingFailure
	if errors.As(err, &tf) {
		return tf, true
	}
	return nil, false
}

// ValidateTargets classifies a seed target set before training.
func ValidateTargets(targets []float64) error {
	switch len(targets) {
	case 0:
		return &TrainingFailure{Kind: EmptyDataset}
	case 1:
		return &TrainingFailure{Kind: InsufficientRows, Rows: 1}
	}
	first := targets[0]
	for _, v := range targets[1:] {
		if v != first {
			return nil
		}
	}
	return &TrainingFailure{Kind: DegenerateTargets, Rows: len(targets)}
}
