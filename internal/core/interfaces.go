package core

import (
	"context"
	"time"

	"github.com/target/pushgate/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// These interfaces define the contracts between the service layer and data layer.
// Service implementations should depend on these interfaces, not concrete implementations.

// EndpointRepository reads the endpoint + channel join used by dispatch.
type EndpointRepository interface {
	// GetWithChannel returns model.ErrEndpointNotFound when no endpoint has the id.
	// A found endpoint whose channel row is missing is returned with a nil Channel.
	GetWithChannel(ctx context.Context, id string) (*model.EndpointWithChannel, error)
	ListIDsByChannel(ctx context.Context, channelID string) ([]string, error)
}

// PushLogRepository appends and reads push log rows.
type PushLogRepository interface {
	Insert(ctx context.Context, entry *model.PushLog) error
	ListByEndpoint(ctx context.Context, endpointID string, limit int) ([]*model.PushLog, error)
}

// GroupRepository resolves endpoint groups and their members.
type GroupRepository interface {
	// GetWithMembers returns model.ErrGroupNotFound when no group has the id.
	GetWithMembers(ctx context.Context, id string) (*model.Group, error)
}

// PushQueue is the producer side of the durable at-least-once queue.
type PushQueue interface {
	Send(ctx context.Context, msg model.PushMessage) error
	SendBatch(ctx context.Context, msgs []model.PushMessage) error
}

// QueuedPush is a reserved queue message.
type QueuedPush struct {
	ID       string
	Payload  []byte
	Attempts int
}

// PushQueueConsumer is the pull-based consumer side of a durable queue.
type PushQueueConsumer interface {
	// Reserve leases the next due message; it returns model.ErrQueueEmpty when none is available.
	// Attempts is incremented on every reservation, so the first delivery has Attempts == 1.
	Reserve(ctx context.Context, lease time.Duration) (*QueuedPush, error)
	Ack(ctx context.Context, id string) error
	Retry(ctx context.Context, id string, delay time.Duration, lastErr string) error
	WaitForNotification(ctx context.Context) error
}

// LeaseRequeuer returns reserved messages whose lease expired to the queue.
type LeaseRequeuer interface {
	RequeueExpired(ctx context.Context) (int64, error)
}

// PushLogRetention prunes old push logs in bounded batches.
type PushLogRetention interface {
	DeleteLogsOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}
