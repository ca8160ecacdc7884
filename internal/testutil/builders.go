// Package testutil provides database, Redis and fixture helpers for pushgate tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/target/pushgate/internal/domain/model"
)

// ChannelBuilder provides a fluent interface for building channel fixtures.
type ChannelBuilder struct {
	ch model.Channel
}

// NewChannel creates a ChannelBuilder for an active webhook channel.
func NewChannel() *ChannelBuilder {
	return &ChannelBuilder{ch: model.Channel{
		ID:      uuid.NewString(),
		UserID:  "user-1",
		Name:    "test channel",
		Type:    model.ChannelWebhook,
		Status:  model.StatusActive,
		Webhook: "https://hooks.example.com/test",
	}}
}

// WithID sets the channel id.
func (b *ChannelBuilder) WithID(id string) *ChannelBuilder { b.ch.ID = id; return b }

// WithType sets the provider type.
func (b *ChannelBuilder) WithType(t model.ChannelType) *ChannelBuilder { b.ch.Type = t; return b }

// WithWebhook sets the webhook URL.
func (b *ChannelBuilder) WithWebhook(u string) *ChannelBuilder { b.ch.Webhook = u; return b }

// WithSecret sets the signing secret.
func (b *ChannelBuilder) WithSecret(s string) *ChannelBuilder { b.ch.Secret = s; return b }

// Inactive marks the channel inactive.
func (b *ChannelBuilder) Inactive() *ChannelBuilder { b.ch.Status = model.StatusInactive; return b }

// Build returns the channel.
func (b *ChannelBuilder) Build() *model.Channel {
	ch := b.ch
	return &ch
}

// Insert writes the channel to db and returns it.
func (b *ChannelBuilder) Insert(t TestingTB, db *sql.DB) *model.Channel {
	t.Helper()
	ch := b.Build()
	mustExec(t, db, `
		INSERT INTO channels (id, user_id, name, type, status, webhook, secret, corp_id, agent_id, bot_token, chat_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, ch.ID, ch.UserID, ch.Name, string(ch.Type), string(ch.Status),
		ch.Webhook, ch.Secret, ch.CorpID, ch.AgentID, ch.BotToken, ch.ChatID)
	return ch
}

// EndpointBuilder provides a fluent interface for building endpoint fixtures.
type EndpointBuilder struct {
	ep model.Endpoint
}

// NewEndpoint creates an EndpointBuilder for an active endpoint bound to channelID.
func NewEndpoint(channelID string) *EndpointBuilder {
	return &EndpointBuilder{ep: model.Endpoint{
		ID:         uuid.NewString(),
		UserID:     "user-1",
		Name:       "test endpoint",
		Status:     model.StatusActive,
		ChannelID:  channelID,
		Rule:       `{"text":"{{body.message}}"}`,
		TimeoutMs:  model.DefaultTimeoutMs,
		RetryCount: model.DefaultRetryCount,
	}}
}

// WithID sets the endpoint id.
func (b *EndpointBuilder) WithID(id string) *EndpointBuilder { b.ep.ID = id; return b }

// WithRule sets the message template.
func (b *EndpointBuilder) WithRule(rule string) *EndpointBuilder { b.ep.Rule = rule; return b }

// WithRetryCount sets retryCount.
func (b *EndpointBuilder) WithRetryCount(n int) *EndpointBuilder { b.ep.RetryCount = n; return b }

// Inactive marks the endpoint inactive.
func (b *EndpointBuilder) Inactive() *EndpointBuilder { b.ep.Status = model.StatusInactive; return b }

// Build returns the endpoint.
func (b *EndpointBuilder) Build() *model.Endpoint {
	ep := b.ep
	return &ep
}

// Insert writes the endpoint to db and returns it.
func (b *EndpointBuilder) Insert(t TestingTB, db *sql.DB) *model.Endpoint {
	t.Helper()
	ep := b.Build()
	mustExec(t, db, `
		INSERT INTO endpoints (id, user_id, name, status, channel_id, rule, timeout_ms, retry_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, ep.ID, ep.UserID, ep.Name, string(ep.Status), ep.ChannelID, ep.Rule, ep.TimeoutMs, ep.RetryCount)
	return ep
}

// InsertGroup writes a group with members in the given order and returns its id.
func InsertGroup(t TestingTB, db *sql.DB, status model.EndpointStatus, endpointIDs ...string) string {
	t.Helper()
	id := uuid.NewString()
	mustExec(t, db, `INSERT INTO endpoint_groups (id, user_id, name, status) VALUES ($1, 'user-1', $2, $3)`,
		id, "group "+id[:8], string(status))
	for i, epID := range endpointIDs {
		mustExec(t, db, `INSERT INTO endpoint_to_group (group_id, endpoint_id, position) VALUES ($1, $2, $3)`, id, epID, i)
	}
	return id
}

// InsertPushLogAt writes a push log row with an explicit created_at.
func InsertPushLogAt(t TestingTB, db *sql.DB, endpointID string, createdAt time.Time) string {
	t.Helper()
	id := uuid.NewString()
	mustExec(t, db, `
		INSERT INTO push_logs (id, request_id, endpoint_id, status, created_at)
		VALUES ($1, $2, $3, 'success', $4)
	`, id, uuid.NewString(), endpointID, createdAt.UTC())
	return id
}

func mustExec(t TestingTB, db *sql.DB, query string, args ...any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		t.Fatalf("%v", fmt.Errorf("fixture insert: %w", err))
	}
}
