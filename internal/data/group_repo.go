package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/target/pushgate/internal/data/pgxutil"
	apperrors "github.com/target/pushgate/internal/errors"
	"github.com/target/pushgate/internal/domain/model"
)

// GroupRepo reads endpoint groups and their ordered membership.
type GroupRepo struct {
	DB *sql.DB
}

// NewGroupRepo creates a new GroupRepo.
func NewGroupRepo(db *sql.DB) *GroupRepo {
	return &GroupRepo{DB: db}
}

// GetWithMembers returns the group with EndpointIDs in membership order, or model.ErrGroupNotFound.
func (r *GroupRepo) GetWithMembers(ctx context.Context, id string) (*model.Group, error) {
	var group *model.Group
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true},
		Fn: func(tx pgx.Tx) error {
			var g model.Group
			if err := tx.QueryRow(ctx, `
				SELECT id, user_id, name, status, created_at
				FROM endpoint_groups
				WHERE id = $1
			`, id).Scan(&g.ID, &g.UserID, &g.Name, &g.Status, &g.CreatedAt); err != nil {
				return err
			}

			rows, err := tx.Query(ctx, `
				SELECT endpoint_id
				FROM endpoint_to_group
				WHERE group_id = $1
				ORDER BY position, endpoint_id
			`, id)
			if err != nil {
				return fmt.Errorf("list members: %w", err)
			}
			members, err := pgx.CollectRows(rows, pgx.RowTo[string])
			if err != nil {
				return fmt.Errorf("collect members: %w", err)
			}
			g.EndpointIDs = members
			group = &g
			return nil
		},
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get group %s: %w", id, apperrors.MapDBError(err))
	}
	return group, nil
}
