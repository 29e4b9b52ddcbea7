// Allsource - Lookalike Audience Pipeline
// Copyright 2026 Allsource Data
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/byron-allsourcedata/Allsource-sub001

package eventprocessor

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/byron-allsourcedata/Allsource-sub001/internal/lookalike"
	"github.com/byron-allsourcedata/Allsource-sub001/internal/metrics"
)

// Publisher wraps a Watermill JetStream publisher with a circuit breaker.
type Publisher struct {
	publisher      message.Publisher
	circuitBreaker *gobreaker.CircuitBreaker[interface{}]
	completedTopic string
	mu             sync.RWMutex
	closed         bool
	logger         watermill.LoggerAdapter
}

// NewPublisher creates a JetStream publisher. The stream must exist; it is
// not provisioned here.
func NewPublisher(cfg PublisherConfig, logger watermill.LoggerAdapter) (*Publisher, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.ReconnectBufSize(cfg.ReconnectBuffer),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{
				"url": nc.ConnectedUrl(),
			})
		}),
	}

	wmConfig := wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: false,
			TrackMsgId:    cfg.EnableTrackMsgID,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}

	pub, err := wmNats.NewPublisher(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}
	return newPublisher(pub, logger), nil
}

func newPublisher(pub message.Publisher, logger watermill.LoggerAdapter) *Publisher {
	return &Publisher{
		publisher:      pub,
		completedTopic: "lookalike.completed",
		logger:         logger,
	}
}

// SetCircuitBreaker configures the circuit breaker for publish operations.
func (p *Publisher) SetCircuitBreaker(cb *gobreaker.CircuitBreaker[interface{}]) {
	p.circuitBreaker = cb
}

// SetCompletedTopic sets the subject completion events are published on.
func (p *Publisher) SetCompletedTopic(topic string) {
	p.completedTopic = topic
}

// Publish sends a message to the topic. The message UUID doubles as the
// Nats-Msg-Id so JetStream drops duplicates within the stream window.
func (p *Publisher) Publish(ctx context.Context, topic string, msg *message.Message) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPublisherClosed
	}
	p.mu.RUnlock()

	if msg.Metadata.Get(natsgo.MsgIdHdr) == "" {
		msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
	}
	msg.SetContext(ctx)

	var err error
	if p.circuitBreaker != nil {
		_, err = p.circuitBreaker.Execute(func() (interface{}, error) {
			return nil, p.publisher.Publish(topic, msg)
		})
	} else {
		err = p.publisher.Publish(topic, msg)
	}

	if err == nil {
		metrics.RecordNATSPublish()
	}
	return err
}

// PublishJobRequested enqueues a job for the fillers.
func (p *Publisher) PublishJobRequested(ctx context.Context, topic string, event *JobRequested) error {
	data, err := Marshal(event)
	if err != nil {
		return err
	}
	msg := message.NewMessage(event.EventID, data)
	msg.Metadata.Set("job_id", event.JobID)
	return p.Publish(ctx, topic, msg)
}

// PublishJobCompleted announces a finished job on the completed topic.
func (p *Publisher) PublishJobCompleted(ctx context.Context, event *JobCompleted) error {
	data, err := Marshal(event)
	if err != nil {
		return err
	}
	msg := message.NewMessage(event.EventID, data)
	msg.Metadata.Set("job_id", event.JobID)
	msg.Metadata.Set("status", string(event.Status))
	msg.Metadata.Set("user_id", strconv.FormatInt(event.UserID, 10))
	return p.Publish(ctx, p.completedTopic, msg)
}

// NotifyCompleted implements lookalike.Notifier.
func (p *Publisher) NotifyCompleted(ctx context.Context, c lookalike.Completion) error {
	err := p.PublishJobCompleted(ctx, NewJobCompleted(c))
	metrics.RecordNotification("nats", err)
	return err
}

// Close gracefully shuts down the publisher.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.publisher.Close()
}

// WatermillPublisher returns the underlying Watermill publisher for
// components that need message.Publisher, such as the poison queue.
func (p *Publisher) WatermillPublisher() message.Publisher {
	return p.publisher
}
