package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/target/pushgate/internal/core"
	"github.com/target/pushgate/internal/domain/model"
)

// publishChannel is the subset of *amqp.Channel used for publishing.
// A nil confirmation means the channel is not in confirm mode.
type publishChannel interface {
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
	Close() error
}

// PublisherOptions names the queues a Publisher writes to.
type PublisherOptions struct {
	Queue      string
	RetryQueue string
}

// Publisher implements core.PushQueue on a RabbitMQ channel.
// AMQP channels are not safe for concurrent publishing, so calls are serialized.
type Publisher struct {
	mu         sync.Mutex
	ch         publishChannel
	queue      string
	retryQueue string
}

var _ core.PushQueue = (*Publisher)(nil)

// NewPublisher wraps an open channel.
func NewPublisher(ch publishChannel, opts PublisherOptions) *Publisher {
	return &Publisher{ch: ch, queue: opts.Queue, retryQueue: opts.RetryQueue}
}

// Send publishes one message and waits for the broker confirm.
func (p *Publisher) Send(ctx context.Context, msg model.PushMessage) error {
	return p.SendBatch(ctx, []model.PushMessage{msg})
}

// SendBatch publishes every message, then waits for all confirms.
func (p *Publisher) SendBatch(ctx context.Context, msgs []model.PushMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	confirms := make([]*amqp.DeferredConfirmation, 0, len(msgs))
	for _, msg := range msgs {
		body, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("encode push message %s: %w", msg.RequestID, err)
		}
		dc, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.RequestID,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		})
		if err != nil {
			return fmt.Errorf("publish push message %s: %w", msg.RequestID, err)
		}
		confirms = append(confirms, dc)
	}
	return waitConfirms(ctx, confirms)
}

// republish sends a delivery to the retry queue; it comes back to the work queue after delay.
func (p *Publisher) republish(ctx context.Context, d amqp.Delivery, attempts int, delay time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[AttemptsHeader] = int32(attempts) //nolint:gosec // bounded by MaxRetryCount+1

	dc, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, "", p.retryQueue, false, false, amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    d.MessageId,
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
		Expiration:   strconv.FormatInt(max(delay.Milliseconds(), 0), 10),
		Body:         d.Body,
	})
	if err != nil {
		return fmt.Errorf("publish retry: %w", err)
	}
	return waitConfirms(ctx, []*amqp.DeferredConfirmation{dc})
}

func waitConfirms(ctx context.Context, confirms []*amqp.DeferredConfirmation) error {
	for _, dc := range confirms {
		if dc == nil {
			continue
		}
		acked, err := dc.WaitContext(ctx)
		if err != nil {
			return fmt.Errorf("wait for publish confirm: %w", err)
		}
		if !acked {
			return errors.New("broker rejected published message")
		}
	}
	return nil
}

// Close closes the channel.
func (p *Publisher) Close() error {
	return p.ch.Close()
}
