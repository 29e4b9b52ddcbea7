// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package eventprocessor

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/byron-allsourcedata/Allsource-sub001/internal/lookalike"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/validation"
)

// SchemaVersion is the current event schema version.
// Increment this when making breaking changes to an event payload.
const SchemaVersion = 1

// JobRequested asks a filler to run a lookalike job. The job row must exist
// before the request is published.
type JobRequested struct {
	SchemaVersion int       `json:"schema_version,omitempty"`
	EventID       string    `json:"event_id" validate:"required"`
	JobID         string    `json:"job_id" validate:"required,max=36"`
	RequestedAt   time.Time `json:"requested_at"`
}

// NewJobRequested creates a request with a fresh event ID.
func NewJobRequested(jobID string) *JobRequested {
	return &JobRequested{
		SchemaVersion: SchemaVersion,
		EventID:       uuid.New().String(),
		JobID:         jobID,
		RequestedAt:   time.Now().UTC(),
	}
}

// Validate checks required fields.
func (e *JobRequested) Validate() error {
	if verr := validation.ValidateStruct(e); verr != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, verr)
	}
	return nil
}

// JobCompleted announces a job that reached a final state.
type JobCompleted struct {
	SchemaVersion int                       `json:"schema_version,omitempty"`
	EventID       string                    `json:"event_id" validate:"required"`
	JobID         string                    `json:"job_id" validate:"required"`
	UserID        int64                     `json:"user_id"`
	SourceID      string                    `json:"source_id"`
	Status        lookalike.JobStatus       `json:"status" validate:"oneof=completed failed"`
	Size          int64                     `json:"size" validate:"gte=0"`
	Stats         lookalike.SimilarityStats `json:"stats"`
	Reason        string                    `json:"reason,omitempty"`
	CompletedAt   time.Time                 `json:"completed_at"`
}

// NewJobCompleted wraps a pipeline completion in an event.
func NewJobCompleted(c lookalike.Completion) *JobCompleted {
	return &JobCompleted{
		SchemaVersion: SchemaVersion,
		EventID:       uuid.New().String(),
		JobID:         c.JobID,
		UserID:        c.UserID,
		SourceID:      c.SourceID,
		Status:        c.Status,
		Size:          c.Size,
		Stats:         c.Stats,
		Reason:        c.Reason,
		CompletedAt:   time.Now().UTC(),
	}
}

// Validate checks required fields.
func (e *JobCompleted) Validate() error {
	if verr := validation.ValidateStruct(e); verr != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, verr)
	}
	return nil
}

// Completion converts the event back to the pipeline's type.
func (e *JobCompleted) Completion() lookalike.Completion {
	return lookalike.Completion{
		JobID:    e.JobID,
		UserID:   e.UserID,
		SourceID: e.SourceID,
		Status:   e.Status,
		Size:     e.Size,
		Stats:    e.Stats,
		Reason:   e.Reason,
	}
}
