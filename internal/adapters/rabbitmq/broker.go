// Package rabbitmq is the RabbitMQ backend of the push queue.
//
// Topology: a durable work queue and a durable retry queue. The retry queue has no
// consumers; messages sit there for their per-message TTL and are then dead-lettered
// back onto the work queue through the default exchange. The delivery count travels
// in the x-attempts header.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/target/pushgate/config"
)

// AttemptsHeader carries the number of deliveries already made for a message.
const AttemptsHeader = "x-attempts"

// Broker owns the AMQP connection and declares the queue topology.
type Broker struct {
	conn   *amqp.Connection
	cfg    config.RabbitMQConfig
	logger *slog.Logger
}

// DialOptions configures Dial.
type DialOptions struct {
	Config config.RabbitMQConfig
	Logger *slog.Logger
	// Attempts bounds connection attempts; defaults to 5 with doubling waits from 500ms.
	Attempts int
}

// Dial connects to the broker, retrying with backoff, and declares the topology.
func Dial(ctx context.Context, opts DialOptions) (*Broker, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = 5
	}
	if opts.Config.URL == "" {
		return nil, errors.New("rabbitmq url is required")
	}

	var (
		conn *amqp.Connection
		err  error
		wait = 500 * time.Millisecond
	)
	for i := 1; i <= attempts; i++ {
		conn, err = amqp.Dial(opts.Config.URL)
		if err == nil {
			break
		}
		logger.WarnContext(ctx, "rabbitmq dial failed", "attempt", i, "error", err)
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	b := &Broker{conn: conn, cfg: opts.Config, logger: logger.With("component", "rabbitmq")}
	if err := b.declare(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return b, nil
}

func (b *Broker) declare() error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(b.cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %q: %w", b.cfg.Queue, err)
	}
	retryArgs := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": b.cfg.Queue,
	}
	if _, err := ch.QueueDeclare(b.cfg.RetryQueue, true, false, false, false, retryArgs); err != nil {
		return fmt.Errorf("declare retry queue %q: %w", b.cfg.RetryQueue, err)
	}
	return nil
}

// Publisher opens a confirm-mode channel for producing pushes.
func (b *Broker) Publisher() (*Publisher, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publisher channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	return NewPublisher(ch, PublisherOptions{Queue: b.cfg.Queue, RetryQueue: b.cfg.RetryQueue}), nil
}

// Consumer opens a channel with the configured prefetch for consuming pushes.
func (b *Broker) Consumer(handler Handler) (*Consumer, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open consumer channel: %w", err)
	}
	if err := ch.Qos(b.cfg.Prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("set prefetch: %w", err)
	}
	pub, err := b.Publisher()
	if err != nil {
		_ = ch.Close()
		return nil, err
	}
	return NewConsumer(ch, pub, ConsumerOptions{
		Queue:   b.cfg.Queue,
		Handler: handler,
		Logger:  b.logger,
	})
}

// Health reports whether the connection is open.
func (b *Broker) Health(context.Context) error {
	if b.conn == nil || b.conn.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	return nil
}

// Close closes the connection and every channel opened on it.
func (b *Broker) Close() error {
	if b.conn == nil || b.conn.IsClosed() {
		return nil
	}
	return b.conn.Close()
}
