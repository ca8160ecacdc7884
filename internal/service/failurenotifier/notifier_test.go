package failurenotifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/pushgate/internal/observability/notify"
)

type capture struct {
	mu       sync.Mutex
	received []notify.PushFailurePayload
}

func (c *capture) sink() notify.Sink {
	return notify.SinkFunc(func(_ context.Context, p notify.PushFailurePayload) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.received = append(c.received, p)
		return nil
	})
}

func TestServiceNotifyPushFailure(t *testing.T) {
	t.Parallel()
	got := &capture{}
	failed := false
	svc := NewService(Options{
		Sinks: []SinkRegistration{
			{Name: "capture", Sink: got.sink()},
			{Name: "broken", Sink: notify.SinkFunc(func(context.Context, notify.PushFailurePayload) error {
				failed = true
				return errors.New("boom")
			})},
			{Name: "nil"},
		},
	})
	require.True(t, svc.Enabled())

	svc.NotifyPushFailure(context.Background(), notify.PushFailurePayload{RequestID: "r1", EndpointID: "ep-1"})

	require.Len(t, got.received, 1)
	assert.Equal(t, notify.SeverityCritical, got.received[0].Severity)
	assert.False(t, got.received[0].OccurredAt.IsZero())
	assert.True(t, failed, "a failing sink must not stop the others")
}

func TestServiceCooldownPerEndpoint(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	got := &capture{}
	svc := NewService(Options{
		Sinks:    []SinkRegistration{{Name: "capture", Sink: got.sink()}},
		Cooldown: time.Minute,
		Now:      func() time.Time { return now },
	})
	ctx := context.Background()

	svc.NotifyPushFailure(ctx, notify.PushFailurePayload{EndpointID: "ep-1"})
	svc.NotifyPushFailure(ctx, notify.PushFailurePayload{EndpointID: "ep-1"})
	svc.NotifyPushFailure(ctx, notify.PushFailurePayload{EndpointID: "ep-2"})
	now = now.Add(2 * time.Minute)
	svc.NotifyPushFailure(ctx, notify.PushFailurePayload{EndpointID: "ep-1"})

	require.Len(t, got.received, 3)
	assert.Equal(t, "ep-1", got.received[0].EndpointID)
	assert.Equal(t, "ep-2", got.received[1].EndpointID)
	assert.Equal(t, "ep-1", got.received[2].EndpointID)
}

func TestServiceWithoutSinks(t *testing.T) {
	t.Parallel()
	svc := NewService(Options{})
	assert.False(t, svc.Enabled())
	svc.NotifyPushFailure(context.Background(), notify.PushFailurePayload{})
}
