// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package eventprocessor

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/byron-allsourcedata/Allsource-sub001/internal/logging"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/lookalike"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/metrics"
)

// JobRunner executes one lookalike job. *lookalike.Pipeline implements it.
type JobRunner interface {
	Run(ctx context.Context, jobID string) error
}

// JobHandlerStats is a snapshot of handler counters.
type JobHandlerStats struct {
	Received    int64     `json:"received"`
	Completed   int64     `json:"completed"`
	Rejected    int64     `json:"rejected"`
	Unknown     int64     `json:"unknown_jobs"`
	Failed      int64     `json:"failed"`
	LastMessage time.Time `json:"last_message"`
}

// JobHandler consumes job requests and runs them.
//
// Error handling:
//   - malformed or invalid payloads return PermanentError (poison queue)
//   - requests for unknown jobs are acked and logged
//   - other pipeline errors return RetryableError (retry, then redelivery)
type JobHandler struct {
	runner JobRunner
	logger zerolog.Logger

	received  atomic.Int64
	completed atomic.Int64
	rejected  atomic.Int64
	unknown   atomic.Int64
	failed    atomic.Int64
	lastMsg   atomic.Int64
}

// NewJobHandler creates a handler that runs requests with runner.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewJobHandler(runner JobRunner, logger zerolog.Logger) (*JobHandler, error) {
	if runner == nil {
		return nil, errors.New("job runner is required")
	}
	return &JobHandler{
		runner: runner,
		logger: logger.With().Str("component", "job_handler").Logger(),
	}, nil
}

// Handle processes a single job request message. It is registered with
// Router.AddConsumerHandler.
func (h *JobHandler) Handle(msg *message.Message) error {
	h.received.Add(1)
	h.lastMsg.Store(time.Now().UnixNano())
	metrics.RecordNATSConsume()

	req, err := DecodeJobRequested(msg.Payload)
	if err != nil {
		h.rejected.Add(1)
		h.logger.Error().Err(err).Str("message_uuid", msg.UUID).Msg("Rejected job request")
		return NewPermanentError("invalid job request", err)
	}

	ctx := msg.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logging.ContextWithJobID(ctx, req.JobID)
	logger := h.logger.With().Str("job_id", req.JobID).Str("event_id", req.EventID).Logger()
	logger.Debug().Time("requested_at", req.RequestedAt).Msg("Job request received")

	err = h.runner.Run(ctx, req.JobID)
	switch {
	case err == nil:
		h.completed.Add(1)
		return nil
	case errors.Is(err, lookalike.ErrJobNotFound):
		h.unknown.Add(1)
		logger.Warn().Msg("Job request for unknown job, dropping")
		return nil
	default:
		h.failed.Add(1)
		logger.Error().Err(err).Msg("Job run failed, will retry")
		return NewRetryableError("run job", err)
	}
}

// Stats returns the handler counters.
func (h *JobHandler) Stats() JobHandlerStats {
	var last time.Time
	if ns := h.lastMsg.Load(); ns > 0 {
		last = time.Unix(0, ns)
	}
	return JobHandlerStats{
		Received:    h.received.Load(),
		Completed:   h.completed.Load(),
		Rejected:    h.rejected.Load(),
		Unknown:     h.unknown.Load(),
		Failed:      h.failed.Load(),
		LastMessage: last,
	}
}
