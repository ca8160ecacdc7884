// Package pushrunner drives the push consumer from the Postgres push queue.
package pushrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/target/pushgate/internal/core"
	"github.com/target/pushgate/internal/domain/model"
	"github.com/target/pushgate/internal/service"
)

// Handler decides what happens to one delivery. *service.PushConsumer implements it.
type Handler interface {
	Handle(ctx context.Context, d service.Delivery) service.Decision
}

// RunnerOptions configures the runner.
type RunnerOptions struct {
	Queue   core.PushQueueConsumer // Required
	Handler Handler                // Required
	Logger  *slog.Logger

	Lease        time.Duration // per-message lease; defaults to 60s
	Concurrency  int           // worker goroutines; defaults to 1
	PollInterval time.Duration // fallback wake-up for delayed retries; defaults to 1s
}

// Runner reserves queued pushes and hands them to the consumer.
// Workers sleep on LISTEN/NOTIFY and a poll ticker when the queue is empty.
type Runner struct {
	queue   core.PushQueueConsumer
	handler Handler
	logger  *slog.Logger
	lease   time.Duration
	workers int
	poll    time.Duration
}

// NewRunner constructs a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Queue == nil {
		return nil, errors.New("push queue consumer is required")
	}
	if opts.Handler == nil {
		return nil, errors.New("handler is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lease := opts.Lease
	if lease <= 0 {
		lease = 60 * time.Second
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	return &Runner{
		queue:   opts.Queue,
		handler: opts.Handler,
		logger:  logger.With("component", "push_runner"),
		lease:   lease,
		workers: workers,
		poll:    poll,
	}, nil
}

// Run starts the workers and processes messages until ctx is cancelled.
// It returns nil on cancellation and the first fatal reservation error otherwise.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting push runner", "workers", r.workers, "lease", r.lease)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	notify := make(chan struct{}, r.workers)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.listen(ctx, notify)
	}()

	errCh := make(chan error, 1)
	for range r.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.workerLoop(ctx, notify); err != nil {
				// first error wins, cancels all workers
				select {
				case errCh <- err:
					cancel()
				default:
				}
			}
		}()
	}

	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// listen fans queue notifications out to idle workers.
func (r *Runner) listen(ctx context.Context, notify chan<- struct{}) {
	for ctx.Err() == nil {
		if err := r.queue.WaitForNotification(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.WarnContext(ctx, "push queue listen failed, polling", "error", err)
			if !sleep(ctx, r.poll) {
				return
			}
			continue
		}
		for range cap(notify) {
			select {
			case notify <- struct{}{}:
			default:
			}
		}
	}
}

func (r *Runner) workerLoop(ctx context.Context, notify <-chan struct{}) error {
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	for ctx.Err() == nil {
		msg, err := r.queue.Reserve(ctx, r.lease)
		switch {
		case err == nil:
			r.process(ctx, msg)
		case errors.Is(err, model.ErrQueueEmpty):
			select {
			case <-ctx.Done():
				return nil
			case <-notify:
			case <-ticker.C:
			}
		case ctx.Err() != nil:
			return nil
		default:
			return fmt.Errorf("reserve push: %w", err)
		}
	}
	return nil
}

// process runs the handler and settles the message. Settlement runs detached from
// shutdown so a message that was dispatched is not delivered again.
func (r *Runner) process(ctx context.Context, msg *core.QueuedPush) {
	ctx = context.WithoutCancel(ctx)
	decision := r.handler.Handle(ctx, service.Delivery{Body: msg.Payload, Attempts: msg.Attempts})

	switch decision.Action {
	case service.ActionRetry:
		if err := r.queue.Retry(ctx, msg.ID, decision.Delay, decision.Reason); err != nil {
			r.logger.ErrorContext(ctx, "retry queued push failed", "queue_id", msg.ID, "error", err)
		}
	default:
		if err := r.queue.Ack(ctx, msg.ID); err != nil {
			r.logger.ErrorContext(ctx, "ack queued push failed", "queue_id", msg.ID, "error", err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
