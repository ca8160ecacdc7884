package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/target/pushgate/internal/service"
)

// Handler decides what happens to one delivery. *service.PushConsumer implements it.
type Handler interface {
	Handle(ctx context.Context, d service.Delivery) service.Decision
}

// consumeChannel is the subset of *amqp.Channel used for consuming.
type consumeChannel interface {
	ConsumeWithContext(ctx context.Context, queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// ConsumerOptions configures a Consumer.
type ConsumerOptions struct {
	Queue   string
	Tag     string
	Handler Handler
	Logger  *slog.Logger
}

// Consumer feeds deliveries from the work queue to the handler with manual acks.
// A retry decision republishes to the retry queue with the incremented attempt
// header before acking the original.
type Consumer struct {
	ch      consumeChannel
	pub     *Publisher
	queue   string
	tag     string
	handler Handler
	logger  *slog.Logger
}

// NewConsumer wraps an open channel and the publisher used for retries.
func NewConsumer(ch consumeChannel, pub *Publisher, opts ConsumerOptions) (*Consumer, error) {
	if opts.Handler == nil {
		return nil, errors.New("handler is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tag := opts.Tag
	if tag == "" {
		tag = "pushgate"
	}
	return &Consumer{
		ch:      ch,
		pub:     pub,
		queue:   opts.Queue,
		tag:     tag,
		handler: opts.Handler,
		logger:  logger,
	}, nil
}

// Run consumes until ctx is cancelled or the channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.ch.ConsumeWithContext(ctx, c.queue, c.tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %q: %w", c.queue, err)
	}
	c.logger.InfoContext(ctx, "consuming push queue", "queue", c.queue)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("rabbitmq delivery channel closed")
			}
			c.handle(context.WithoutCancel(ctx), d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	attempts := deliveryAttempts(d.Headers) + 1
	decision := c.handler.Handle(ctx, service.Delivery{Body: d.Body, Attempts: attempts})

	if decision.Action == service.ActionRetry {
		if err := c.pub.republish(ctx, d, attempts, decision.Delay); err != nil {
			c.logger.ErrorContext(ctx, "republish for retry failed, requeueing", "message_id", d.MessageId, "error", err)
			if nerr := d.Nack(false, true); nerr != nil {
				c.logger.ErrorContext(ctx, "nack failed", "message_id", d.MessageId, "error", nerr)
			}
			return
		}
	}
	if err := d.Ack(false); err != nil {
		c.logger.ErrorContext(ctx, "ack failed", "message_id", d.MessageId, "error", err)
	}
}

// deliveryAttempts reads the attempt header; values arrive with whatever integer width
// the publisher and broker chose.
func deliveryAttempts(h amqp.Table) int {
	switch v := h[AttemptsHeader].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}

// Close closes the consume channel and the retry publisher.
func (c *Consumer) Close() error {
	return errors.Join(c.ch.Close(), c.pub.Close())
}
