package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/target/pushgate/internal/data/pgxutil"
	apperrors "github.com/target/pushgate/internal/errors"
	"github.com/target/pushgate/internal/domain/model"
)

// Push log listing bounds.
const (
	DefaultPushLogLimit = 50
	MaxPushLogLimit     = 500
)

// ErrPushLogRequired is returned when Insert is called with a nil log.
var ErrPushLogRequired = errors.New("push log is required")

// PushLogRepo persists push outcomes. Rows are append-only.
type PushLogRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewPushLogRepo creates a new PushLogRepo.
func NewPushLogRepo(db *sql.DB, tp TimeProvider) *PushLogRepo {
	return &PushLogRepo{DB: db, timeProvider: timeProviderOrDefault(tp)}
}

// Insert appends a push log row. ID and CreatedAt are filled in when empty,
// and ResponseBody is truncated to model.MaxResponseBodyBytes.
func (r *PushLogRepo) Insert(ctx context.Context, entry *model.PushLog) error {
	if entry == nil {
		return ErrPushLogRequired
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.timeProvider.Now().UTC()
	}
	if entry.ResponseBody != nil {
		truncated := model.TruncateResponseBody(*entry.ResponseBody)
		entry.ResponseBody = &truncated
	}

	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO push_logs (id, request_id, user_id, endpoint_id, status, response_body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.ID, entry.RequestID, entry.UserID, entry.EndpointID, string(entry.Status), entry.ResponseBody, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert push log: %w", apperrors.MapDBError(err))
	}
	return nil
}

// ListByEndpoint returns the newest push logs for endpointID, newest first.
func (r *PushLogRepo) ListByEndpoint(ctx context.Context, endpointID string, limit int) ([]*model.PushLog, error) {
	if limit <= 0 {
		limit = DefaultPushLogLimit
	}
	limit = min(limit, MaxPushLogLimit)

	var logs []*model.PushLog
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT id, request_id, user_id, endpoint_id, status, response_body, created_at
			FROM push_logs
			WHERE endpoint_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`, endpointID, limit)
		if err != nil {
			return err
		}
		logs, err = pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.PushLog])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list push logs: %w", apperrors.MapDBError(err))
	}
	if logs == nil {
		logs = []*model.PushLog{}
	}
	return logs, nil
}

// DeleteLogsOlderThan removes up to batchSize push logs created before cutoff.
// Concurrent reapers serialize on an advisory lock; losers return 0.
func (r *PushLogRepo) DeleteLogsOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		return 0, errors.New("batchSize must be positive")
	}

	var affected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			locked, err := pgxutil.TryAdvisoryXactLock(ctx, tx, advisoryLockQueueMajor, advisoryLockQueueRetention)
			if err != nil || !locked {
				return err
			}

			res, err := tx.ExecContext(ctx, `
				DELETE FROM push_logs
				WHERE id IN (
				  SELECT id FROM push_logs
				  WHERE created_at < $1
				  ORDER BY created_at
				  LIMIT $2
				)
			`, cutoff.UTC(), batchSize)
			if err != nil {
				return fmt.Errorf("delete old push logs: %w", err)
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
