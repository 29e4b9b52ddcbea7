// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

// Package eventprocessor carries lookalike job traffic over NATS JetStream
// using Watermill.
//
// # Topics
//
// All subjects live in one stream (LOOKALIKE by default):
//
//	lookalike.requested  JobRequested, consumed by fillers in a queue group
//	lookalike.completed  JobCompleted, published when a job reaches a final state
//	lookalike.poison     requests that can never be processed
//
// # Delivery
//
// A request is acked only after the pipeline returns, so the subscriber's
// ack wait must outlast a job. Handler outcomes map to delivery as follows:
//
//	success or unknown job   ack
//	malformed payload        PermanentError, routed to the poison queue
//	any other failure        RetryableError, retried in process, then nacked
//
// Redelivery of a request for a job that already completed is acked by the
// pipeline without doing any work.
//
// # Components
//
// Components bundles the optional embedded server, stream setup, the
// circuit-breaker-protected Publisher, the Subscriber and the Router:
//
//	comps, err := eventprocessor.Connect(ctx, eventprocessor.NewConfig(&cfg.NATS))
//	notifier := comps.Publisher()           // lookalike.Notifier
//	err = comps.RegisterJobHandler(pipeline, logger)
//	err = comps.Start(ctx)
//	defer comps.Shutdown(context.Background())
package eventprocessor
