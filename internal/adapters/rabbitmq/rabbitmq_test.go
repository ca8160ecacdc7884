package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/pushgate/internal/domain/model"
	"github.com/target/pushgate/internal/service"
)

type published struct {
	key string
	msg amqp.Publishing
}

type fakePublishChannel struct {
	mu     sync.Mutex
	sent   []published
	err    error
	closed bool
}

func (f *fakePublishChannel) PublishWithDeferredConfirmWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, published{key: key, msg: msg})
	return nil, nil
}

func (f *fakePublishChannel) Close() error {
	f.closed = true
	return nil
}

type fakeAcker struct {
	acks     int
	nacks    int
	requeued bool
}

func (a *fakeAcker) Ack(uint64, bool) error { a.acks++; return nil }
func (a *fakeAcker) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacks++
	a.requeued = requeue
	return nil
}
func (a *fakeAcker) Reject(uint64, bool) error { return nil }

type fakeConsumeChannel struct {
	deliveries chan amqp.Delivery
}

func (f *fakeConsumeChannel) ConsumeWithContext(context.Context, string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	return f.deliveries, nil
}

func (f *fakeConsumeChannel) Close() error { return nil }

type handlerFunc func(ctx context.Context, d service.Delivery) service.Decision

func (f handlerFunc) Handle(ctx context.Context, d service.Delivery) service.Decision { return f(ctx, d) }

func newTestPublisher(ch *fakePublishChannel) *Publisher {
	return NewPublisher(ch, PublisherOptions{Queue: "push", RetryQueue: "push.retry"})
}

func TestPublisher_SendBatch(t *testing.T) {
	t.Parallel()
	ch := &fakePublishChannel{}
	pub := newTestPublisher(ch)

	err := pub.SendBatch(context.Background(), []model.PushMessage{
		{RequestID: "r1", EndpointID: "e1", Body: json.RawMessage(`{"msg":"hi"}`)},
		{RequestID: "r2", EndpointID: "e2"},
	})
	require.NoError(t, err)
	require.Len(t, ch.sent, 2)

	first := ch.sent[0]
	assert.Equal(t, "push", first.key)
	assert.Equal(t, "r1", first.msg.MessageId)
	assert.Equal(t, amqp.Persistent, first.msg.DeliveryMode)
	assert.Equal(t, "application/json", first.msg.ContentType)

	decoded, err := model.DecodePushMessage(first.msg.Body)
	require.NoError(t, err)
	assert.Equal(t, "e1", decoded.EndpointID)
	assert.JSONEq(t, `{"msg":"hi"}`, string(decoded.Body))
}

func TestPublisher_SendBatchEmptyIsNoop(t *testing.T) {
	t.Parallel()
	ch := &fakePublishChannel{}
	require.NoError(t, newTestPublisher(ch).SendBatch(context.Background(), nil))
	assert.Empty(t, ch.sent)
}

func TestPublisher_SendPropagatesPublishError(t *testing.T) {
	t.Parallel()
	ch := &fakePublishChannel{err: errors.New("channel closed")}
	err := newTestPublisher(ch).Send(context.Background(), model.PushMessage{RequestID: "r1", EndpointID: "e1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "r1")
}

func TestDeliveryAttempts(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		value any
		want  int
	}{
		{name: "missing", value: nil, want: 0},
		{name: "int32", value: int32(2), want: 2},
		{name: "int64", value: int64(3), want: 3},
		{name: "int", value: 4, want: 4},
		{name: "string", value: "5", want: 5},
		{name: "garbage", value: "x", want: 0},
		{name: "unsupported", value: true, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := amqp.Table{}
			if tt.value != nil {
				h[AttemptsHeader] = tt.value
			}
			assert.Equal(t, tt.want, deliveryAttempts(h))
		})
	}
}

func newTestConsumer(t *testing.T, pubCh *fakePublishChannel, h Handler) *Consumer {
	t.Helper()
	c, err := NewConsumer(&fakeConsumeChannel{}, newTestPublisher(pubCh), ConsumerOptions{Queue: "push", Handler: h})
	require.NoError(t, err)
	return c
}

func TestConsumer_HandleAck(t *testing.T) {
	t.Parallel()
	pubCh := &fakePublishChannel{}
	var got service.Delivery
	c := newTestConsumer(t, pubCh, handlerFunc(func(_ context.Context, d service.Delivery) service.Decision {
		got = d
		return service.Decision{Action: service.ActionAck}
	}))

	acker := &fakeAcker{}
	c.handle(context.Background(), amqp.Delivery{Acknowledger: acker, Body: []byte(`{}`)})

	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, 1, acker.acks)
	assert.Empty(t, pubCh.sent)
}

func TestConsumer_HandleRetryRepublishesWithDelay(t *testing.T) {
	t.Parallel()
	pubCh := &fakePublishChannel{}
	c := newTestConsumer(t, pubCh, handlerFunc(func(_ context.Context, d service.Delivery) service.Decision {
		assert.Equal(t, 3, d.Attempts)
		return service.Decision{Action: service.ActionRetry, Delay: 5 * time.Second}
	}))

	acker := &fakeAcker{}
	c.handle(context.Background(), amqp.Delivery{
		Acknowledger: acker,
		MessageId:    "r1",
		Headers:      amqp.Table{AttemptsHeader: int32(2), "trace": "abc"},
		Body:         []byte(`{"requestId":"r1"}`),
	})

	require.Len(t, pubCh.sent, 1)
	retry := pubCh.sent[0]
	assert.Equal(t, "push.retry", retry.key)
	assert.Equal(t, "5000", retry.msg.Expiration)
	assert.Equal(t, int32(3), retry.msg.Headers[AttemptsHeader])
	assert.Equal(t, "abc", retry.msg.Headers["trace"])
	assert.Equal(t, "r1", retry.msg.MessageId)
	assert.Equal(t, 1, acker.acks)
	assert.Zero(t, acker.nacks)
}

func TestConsumer_HandleRetryRequeuesWhenRepublishFails(t *testing.T) {
	t.Parallel()
	pubCh := &fakePublishChannel{err: errors.New("blocked")}
	c := newTestConsumer(t, pubCh, handlerFunc(func(context.Context, service.Delivery) service.Decision {
		return service.Decision{Action: service.ActionRetry, Delay: time.Second}
	}))

	acker := &fakeAcker{}
	c.handle(context.Background(), amqp.Delivery{Acknowledger: acker})

	assert.Zero(t, acker.acks)
	assert.Equal(t, 1, acker.nacks)
	assert.True(t, acker.requeued)
}

func TestConsumer_RunStopsOnCancelAndClosedChannel(t *testing.T) {
	t.Parallel()

	deliveries := make(chan amqp.Delivery, 1)
	handled := make(chan struct{}, 1)
	c, err := NewConsumer(&fakeConsumeChannel{deliveries: deliveries}, newTestPublisher(&fakePublishChannel{}), ConsumerOptions{
		Queue: "push",
		Handler: handlerFunc(func(context.Context, service.Delivery) service.Decision {
			handled <- struct{}{}
			return service.Decision{Action: service.ActionAck}
		}),
	})
	require.NoError(t, err)

	acker := &fakeAcker{}
	deliveries <- amqp.Delivery{Acknowledger: acker}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case <-handled:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery not handled")
	}
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}

	close(deliveries)
	err = c.Run(context.Background())
	require.Error(t, err)
}

func TestNewConsumer_RequiresHandler(t *testing.T) {
	t.Parallel()
	_, err := NewConsumer(&fakeConsumeChannel{}, newTestPublisher(&fakePublishChannel{}), ConsumerOptions{})
	require.Error(t, err)
}
