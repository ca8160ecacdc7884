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

// EndpointRepo reads endpoints joined with their bound channel.
// Endpoint and channel CRUD lives in the management surface; dispatch only reads.
type EndpointRepo struct {
	DB *sql.DB
}

// NewEndpointRepo creates a new EndpointRepo.
func NewEndpointRepo(db *sql.DB) *EndpointRepo {
	return &EndpointRepo{DB: db}
}

const endpointWithChannelSQL = `
	SELECT
	  e.id, e.user_id, e.name, e.status, e.channel_id, e.rule,
	  e.timeout_ms, e.retry_count, e.created_at, e.updated_at,
	  c.id, c.user_id, c.name, c.type, c.status,
	  c.webhook, c.secret, c.corp_id, c.agent_id, c.bot_token, c.chat_id, c.created_at
	FROM endpoints e
	LEFT JOIN channels c ON c.id = e.channel_id
	WHERE e.id = $1
`

// GetWithChannel returns the endpoint with its channel, or model.ErrEndpointNotFound.
// A dangling channel_id yields an endpoint with a nil Channel.
func (r *EndpointRepo) GetWithChannel(ctx context.Context, id string) (*model.EndpointWithChannel, error) {
	var out *model.EndpointWithChannel
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		ep, scanErr := scanEndpointWithChannel(conn.QueryRow(ctx, endpointWithChannelSQL, id))
		if scanErr != nil {
			return scanErr
		}
		out = ep
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrEndpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get endpoint %s: %w", id, apperrors.MapDBError(err))
	}
	return out, nil
}

// ListIDsByChannel returns the ids of every endpoint bound to channelID.
func (r *EndpointRepo) ListIDsByChannel(ctx context.Context, channelID string) ([]string, error) {
	var ids []string
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `SELECT id FROM endpoints WHERE channel_id = $1 ORDER BY id`, channelID)
		if err != nil {
			return err
		}
		ids, err = pgx.CollectRows(rows, pgx.RowTo[string])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list endpoints by channel: %w", apperrors.MapDBError(err))
	}
	return ids, nil
}

// channelColumns holds the nullable side of the LEFT JOIN.
type channelColumns struct {
	id, userID, name, typ, status                     sql.NullString
	webhook, secret, corpID, agentID, botToken, chatID sql.NullString
	createdAt                                          sql.NullTime
}

func (c *channelColumns) toModel() *model.Channel {
	if !c.id.Valid {
		return nil
	}
	return &model.Channel{
		ID:        c.id.String,
		UserID:    c.userID.String,
		Name:      c.name.String,
		Type:      model.ChannelType(c.typ.String),
		Status:    model.EndpointStatus(c.status.String),
		Webhook:   c.webhook.String,
		Secret:    c.secret.String,
		CorpID:    c.corpID.String,
		AgentID:   c.agentID.String,
		BotToken:  c.botToken.String,
		ChatID:    c.chatID.String,
		CreatedAt: c.createdAt.Time,
	}
}

func scanEndpointWithChannel(row pgx.Row) (*model.EndpointWithChannel, error) {
	var (
		ep        model.EndpointWithChannel
		updatedAt sql.NullTime
		ch        channelColumns
	)
	err := row.Scan(
		&ep.ID, &ep.UserID, &ep.Name, &ep.Status, &ep.ChannelID, &ep.Rule,
		&ep.TimeoutMs, &ep.RetryCount, &ep.CreatedAt, &updatedAt,
		&ch.id, &ch.userID, &ch.name, &ch.typ, &ch.status,
		&ch.webhook, &ch.secret, &ch.corpID, &ch.agentID, &ch.botToken, &ch.chatID, &ch.createdAt,
	)
	if err != nil {
		return nil, err
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		ep.UpdatedAt = &t
	}
	ep.Channel = ch.toModel()
	return &ep, nil
}
