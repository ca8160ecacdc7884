package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/target/pushgate/internal/domain/model"
	"github.com/target/pushgate/internal/observability/notify"
)

// fakeResolver serves endpoint snapshots from a map, or fails every lookup when err is set.
type fakeResolver struct {
	mu        sync.Mutex
	endpoints map[string]*model.EndpointWithChannel
	err       error
	calls     int
}

func (f *fakeResolver) Get(_ context.Context, id string) (*model.EndpointWithChannel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.endpoints[id], nil
}

// fakeSender returns the queued errors in order, then nil.
type fakeSender struct {
	mu      sync.Mutex
	errs    []error
	calls   int
	ctxErrs []error
	msgs    []map[string]any
	channel []*model.Channel
	timeout []time.Duration
}

func (f *fakeSender) Send(ctx context.Context, ch *model.Channel, msg map[string]any, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	f.msgs = append(f.msgs, msg)
	f.channel = append(f.channel, ch)
	f.timeout = append(f.timeout, timeout)
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// failing returns n copies of err.
func failing(n int, err error) []error {
	out := make([]error, n)
	for i := range out {
		out[i] = err
	}
	return out
}

var errProvider = errors.New("discord: http 500: boom")

func activeEndpoint(id string) *model.EndpointWithChannel {
	return &model.EndpointWithChannel{
		Endpoint: model.Endpoint{
			ID:         id,
			UserID:     "user-1",
			Name:       "endpoint " + id,
			Status:     model.StatusActive,
			ChannelID:  "ch-1",
			Rule:       `{"content":"{{body.msg}}"}`,
			TimeoutMs:  5000,
			RetryCount: 2,
		},
		Channel: &model.Channel{
			ID:      "ch-1",
			Type:    model.ChannelDiscord,
			Status:  model.StatusActive,
			Webhook: "https://discord.example.com/api/webhooks/1",
		},
	}
}

// sleepRecorder records backoff waits without sleeping.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

// chanNotifier forwards alerts to a buffered channel; alerts are sent from a goroutine.
type chanNotifier chan notify.PushFailurePayload

func newChanNotifier() chanNotifier { return make(chanNotifier, 8) }

func (c chanNotifier) NotifyPushFailure(_ context.Context, p notify.PushFailurePayload) { c <- p }

// next waits briefly for an alert; ok is false when none arrives.
func (c chanNotifier) next(wait time.Duration) (notify.PushFailurePayload, bool) {
	select {
	case p := <-c:
		return p, true
	case <-time.After(wait):
		return notify.PushFailurePayload{}, false
	}
}
