package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/target/pushgate/internal/core"
	"github.com/target/pushgate/internal/data/pgxutil"
	"github.com/target/pushgate/internal/domain/model"
)

// PushQueueChannel is the LISTEN/NOTIFY channel signalled on every enqueue.
const PushQueueChannel = "push_queue_added"

// ErrQueuedPushNotFound is returned when acking or retrying a message that no longer exists.
var ErrQueuedPushNotFound = errors.New("queued push not found")

// PushQueueRepo is a Postgres-backed durable push queue.
// It serves both the producer side (core.PushQueue) and the consumer side (core.PushQueueConsumer).
type PushQueueRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// PushQueueRepoOptions configures a PushQueueRepo.
type PushQueueRepoOptions struct {
	TimeProvider TimeProvider
	Logger       *slog.Logger
}

// NewPushQueueRepo creates a new PushQueueRepo.
func NewPushQueueRepo(db *sql.DB, opts PushQueueRepoOptions) *PushQueueRepo {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PushQueueRepo{
		DB:           db,
		timeProvider: timeProviderOrDefault(opts.TimeProvider),
		logger:       logger.With("component", "push_queue"),
	}
}

var (
	_ core.PushQueue         = (*PushQueueRepo)(nil)
	_ core.PushQueueConsumer = (*PushQueueRepo)(nil)
)

// Send enqueues a single message.
func (r *PushQueueRepo) Send(ctx context.Context, msg model.PushMessage) error {
	return r.SendBatch(ctx, []model.PushMessage{msg})
}

// SendBatch enqueues messages atomically and signals waiting consumers once.
func (r *PushQueueRepo) SendBatch(ctx context.Context, msgs []model.PushMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	payloads := make([][]byte, len(msgs))
	for i, msg := range msgs {
		raw, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("encode push message %s: %w", msg.RequestID, err)
		}
		payloads[i] = raw
	}

	now := r.timeProvider.Now().UTC()
	return pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
		Fn: func(tx pgx.Tx) error {
			batch := &pgx.Batch{}
			for _, raw := range payloads {
				batch.Queue(
					`INSERT INTO push_queue (id, payload, scheduled_at, created_at) VALUES ($1::uuid, $2, $3, $3)`,
					uuid.NewString(), raw, now,
				)
			}
			batch.Queue(`SELECT pg_notify($1::text, $2::text)`, PushQueueChannel, fmt.Sprint(len(payloads)))
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("enqueue pushes: %w", err)
			}
			return nil
		},
	})
}

const reservePushSQL = `
	UPDATE push_queue
	SET lease_expires_at = $2,
	    attempts = attempts + 1
	WHERE id = (
	  SELECT id FROM push_queue
	  WHERE lease_expires_at IS NULL
	    AND scheduled_at <= $1
	  ORDER BY scheduled_at, created_at
	  FOR UPDATE SKIP LOCKED
	  LIMIT 1
	)
	RETURNING id::text, payload, attempts
`

// Reserve leases the next due message for lease. Expired leases are returned to the
// queue first so a crashed consumer's work is picked up again.
func (r *PushQueueRepo) Reserve(ctx context.Context, lease time.Duration) (*core.QueuedPush, error) {
	if lease <= 0 {
		return nil, errors.New("lease must be positive")
	}
	if _, err := r.RequeueExpired(ctx); err != nil {
		return nil, fmt.Errorf("requeue expired pushes: %w", err)
	}

	var reserved *core.QueuedPush
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
		Fn: func(tx pgx.Tx) error {
			now := r.timeProvider.Now().UTC()
			var item core.QueuedPush
			if err := tx.QueryRow(ctx, reservePushSQL, now, now.Add(lease)).
				Scan(&item.ID, &item.Payload, &item.Attempts); err != nil {
				return err
			}
			reserved = &item
			return nil
		},
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrQueueEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("reserve push: %w", err)
	}
	return reserved, nil
}

// Ack removes a message permanently.
func (r *PushQueueRepo) Ack(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM push_queue WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ack push: %w", err)
	}
	return pgxutil.RequireAffected(res, ErrQueuedPushNotFound)
}

// Retry releases the lease and makes the message due again after delay.
func (r *PushQueueRepo) Retry(ctx context.Context, id string, delay time.Duration, lastErr string) error {
	due := r.timeProvider.Now().Add(max(delay, 0)).UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE push_queue
		SET lease_expires_at = NULL,
		    scheduled_at = $2,
		    last_error = $3
		WHERE id = $1
	`, id, due, model.TruncateResponseBody(lastErr))
	if err != nil {
		return fmt.Errorf("retry push: %w", err)
	}
	return pgxutil.RequireAffected(res, ErrQueuedPushNotFound)
}

// WaitForNotification blocks until a push is enqueued or ctx is done.
func (r *PushQueueRepo) WaitForNotification(ctx context.Context) error {
	return pgxutil.WaitForNotify(ctx, r.DB, PushQueueChannel, r.logger)
}

// Advisory lock namespace for queue maintenance, two-arg form (major, minor).
const (
	advisoryLockQueueMajor     int32 = 2000
	advisoryLockQueueRequeue   int32 = 1
	advisoryLockQueueRetention int32 = 2
)

// RequeueExpired clears leases that ran past their expiry so the messages are reserved again.
// Only one caller across all processes does the work at a time; the others return 0.
func (r *PushQueueRepo) RequeueExpired(ctx context.Context) (int64, error) {
	var affected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			locked, err := pgxutil.TryAdvisoryXactLock(ctx, tx, advisoryLockQueueMajor, advisoryLockQueueRequeue)
			if err != nil || !locked {
				return err
			}

			res, err := tx.ExecContext(ctx, `
				UPDATE push_queue
				SET lease_expires_at = NULL
				WHERE lease_expires_at IS NOT NULL
				  AND lease_expires_at < $1
			`, r.timeProvider.Now().UTC())
			if err != nil {
				return fmt.Errorf("requeue expired: %w", err)
			}
			affected, err = res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}
