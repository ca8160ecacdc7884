package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/pushgate/internal/domain/model"
	"github.com/target/pushgate/internal/testutil"
)

func newTestQueue(db *sql.DB) (*PushQueueRepo, *FixedTimeProvider) {
	clock := NewFixedTimeProvider(testutil.TestTime())
	return NewPushQueueRepo(db, PushQueueRepoOptions{TimeProvider: clock}), clock
}

func TestPushQueueRepo_Integration_SendReserveAck(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		q, _ := newTestQueue(db)
		ctx := context.Background()

		msg := model.PushMessage{RequestID: "req-1", EndpointID: "ep-1", Body: json.RawMessage(`{"a":1}`)}
		require.NoError(t, q.Send(ctx, msg))

		item, err := q.Reserve(ctx, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 1, item.Attempts)

		decoded, err := model.DecodePushMessage(item.Payload)
		require.NoError(t, err)
		assert.Equal(t, "req-1", decoded.RequestID)
		assert.JSONEq(t, `{"a":1}`, string(decoded.Body))

		_, err = q.Reserve(ctx, time.Minute)
		require.ErrorIs(t, err, model.ErrQueueEmpty, "leased message is not handed out twice")

		require.NoError(t, q.Ack(ctx, item.ID))
		require.ErrorIs(t, q.Ack(ctx, item.ID), ErrQueuedPushNotFound)
	})
}

func TestPushQueueRepo_Integration_RetryDelaysRedelivery(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		q, clock := newTestQueue(db)
		ctx := context.Background()

		require.NoError(t, q.Send(ctx, model.PushMessage{RequestID: "req-1", EndpointID: "ep-1"}))
		item, err := q.Reserve(ctx, time.Minute)
		require.NoError(t, err)

		require.NoError(t, q.Retry(ctx, item.ID, 5*time.Second, "provider 500"))

		_, err = q.Reserve(ctx, time.Minute)
		require.ErrorIs(t, err, model.ErrQueueEmpty)

		clock.Advance(5 * time.Second)
		again, err := q.Reserve(ctx, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, item.ID, again.ID)
		assert.Equal(t, 2, again.Attempts)
	})
}

func TestPushQueueRepo_Integration_ExpiredLeaseIsRequeued(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		q, clock := newTestQueue(db)
		ctx := context.Background()

		require.NoError(t, q.Send(ctx, model.PushMessage{RequestID: "req-1", EndpointID: "ep-1"}))
		first, err := q.Reserve(ctx, 30*time.Second)
		require.NoError(t, err)

		clock.Advance(31 * time.Second)
		n, err := q.RequeueExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		second, err := q.Reserve(ctx, 30*time.Second)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, 2, second.Attempts)
	})
}

func TestPushQueueRepo_Integration_ConcurrentReserve(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		q, _ := newTestQueue(db)
		ctx := context.Background()

		const total = 20
		msgs := make([]model.PushMessage, total)
		for i := range msgs {
			msgs[i] = model.PushMessage{RequestID: "req", EndpointID: "ep"}
		}
		require.NoError(t, q.SendBatch(ctx, msgs))

		var (
			mu   sync.Mutex
			seen = map[string]int{}
			wg   sync.WaitGroup
		)
		for range 5 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					item, err := q.Reserve(ctx, time.Minute)
					if err != nil {
						return
					}
					mu.Lock()
					seen[item.ID]++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Len(t, seen, total)
		for id, n := range seen {
			assert.Equal(t, 1, n, "message %s reserved more than once", id)
		}
	})
}

func TestPushQueueRepo_Integration_WaitForNotification(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		q, _ := newTestQueue(db)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		done := make(chan error, 1)
		go func() { done <- q.WaitForNotification(ctx) }()

		// give LISTEN a moment to register
		time.Sleep(200 * time.Millisecond)
		require.NoError(t, q.Send(ctx, model.PushMessage{RequestID: "req", EndpointID: "ep"}))

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-ctx.Done():
			t.Fatal("timed out waiting for notification")
		}
	})
}
