// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package eventprocessor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"

	"github.com/byron-allsourcedata/Allsource-sub001/internal/lookalike"
)

type failingPublisher struct{ calls int }

func (p *failingPublisher) Publish(string, ...*message.Message) error {
	p.calls++
	return errors.New("nats: no responders")
}

func (p *failingPublisher) Close() error { return nil }

func newTestPubSub(t *testing.T) *gochannel.GoChannel {
	t.Helper()
	ps := gochannel.NewGoChannel(gochannel.Config{Persistent: true}, watermill.NopLogger{})
	t.Cleanup(func() { _ = ps.Close() })
	return ps
}

func receive(t *testing.T, ch <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-ch:
		msg.Ack()
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestPublisher_PublishJobRequested(t *testing.T) {
	t.Parallel()

	ps := newTestPubSub(t)
	p := newPublisher(ps, nil)

	msgs, err := ps.Subscribe(context.Background(), "lookalike.requested")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	event := NewJobRequested("job-9")
	if err := p.PublishJobRequested(context.Background(), "lookalike.requested", event); err != nil {
		t.Fatalf("PublishJobRequested() error = %v", err)
	}

	msg := receive(t, msgs)
	if msg.UUID != event.EventID {
		t.Errorf("UUID = %s, want %s", msg.UUID, event.EventID)
	}
	if got := msg.Metadata.Get(natsgo.MsgIdHdr); got != event.EventID {
		t.Errorf("Nats-Msg-Id = %q, want %q", got, event.EventID)
	}
	if got := msg.Metadata.Get("job_id"); got != "job-9" {
		t.Errorf("job_id = %q", got)
	}

	decoded, err := DecodeJobRequested(msg.Payload)
	if err != nil || decoded.JobID != "job-9" {
		t.Errorf("DecodeJobRequested() = %+v, %v", decoded, err)
	}
}

func TestPublisher_NotifyCompleted(t *testing.T) {
	t.Parallel()

	ps := newTestPubSub(t)
	p := newPublisher(ps, nil)
	p.SetCompletedTopic("test.completed")

	msgs, err := ps.Subscribe(context.Background(), "test.completed")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	err = p.NotifyCompleted(context.Background(), lookalike.Completion{
		JobID:  "job-3",
		UserID: 42,
		Status: lookalike.StatusFailed,
		Reason: "no_columns",
	})
	if err != nil {
		t.Fatalf("NotifyCompleted() error = %v", err)
	}

	msg := receive(t, msgs)
	if msg.Metadata.Get("status") != "failed" || msg.Metadata.Get("user_id") != "42" {
		t.Errorf("metadata = %v", msg.Metadata)
	}
	event, err := DecodeJobCompleted(msg.Payload)
	if err != nil {
		t.Fatalf("DecodeJobCompleted() error = %v", err)
	}
	if event.Reason != "no_columns" || event.JobID != "job-3" {
		t.Errorf("event = %+v", event)
	}
}

func TestPublisher_RejectsInvalidEvent(t *testing.T) {
	t.Parallel()

	inner := &failingPublisher{}
	p := newPublisher(inner, nil)

	err := p.NotifyCompleted(context.Background(), lookalike.Completion{JobID: "job-1", Status: lookalike.StatusRunning})
	if !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("NotifyCompleted() error = %v, want ErrInvalidEvent", err)
	}
	if inner.calls != 0 {
		t.Errorf("publisher calls = %d, want 0", inner.calls)
	}
}

func TestPublisher_CircuitBreakerOpens(t *testing.T) {
	t.Parallel()

	inner := &failingPublisher{}
	p := newPublisher(inner, nil)
	p.SetCircuitBreaker(NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "publisher-test",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 2,
	}))

	for i := 0; i < 4; i++ {
		if err := p.PublishJobRequested(context.Background(), "lookalike.requested", NewJobRequested("job-1")); err == nil {
			t.Fatalf("attempt %d: expected error", i)
		}
	}
	if inner.calls != 2 {
		t.Errorf("publisher calls = %d, want 2 (breaker should short-circuit)", inner.calls)
	}

	h := p.HealthCheck(context.Background())
	if !h.Healthy || !h.Degraded {
		t.Errorf("HealthCheck() = %+v, want healthy and degraded", h)
	}
}

func TestPublisher_Close(t *testing.T) {
	t.Parallel()

	p := newPublisher(newTestPubSub(t), nil)
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	err := p.PublishJobRequested(context.Background(), "lookalike.requested", NewJobRequested("job-1"))
	if !errors.Is(err, ErrPublisherClosed) {
		t.Errorf("Publish after Close error = %v, want ErrPublisherClosed", err)
	}
	if h := p.HealthCheck(context.Background()); h.Healthy {
		t.Error("closed publisher should be unhealthy")
	}
}
