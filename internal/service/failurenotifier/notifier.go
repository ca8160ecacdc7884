// Package failurenotifier fans push failure alerts out to the configured sinks.
package failurenotifier

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/target/pushgate/internal/observability/notify"
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// Cooldown suppresses further alerts for an endpoint after one was sent. Zero disables it.
	Cooldown time.Duration
	Now      func() time.Time
}

// Service dispatches failure events to all registered sinks.
type Service struct {
	logger   *slog.Logger
	sinks    []SinkRegistration
	cooldown time.Duration
	now      func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewService constructs a failure notifier.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		name := entry.Name
		if name == "" {
			name = "sink"
		}
		sinks = append(sinks, SinkRegistration{
			Name: name,
			Sink: entry.Sink,
		})
	}

	return &Service{
		logger:   logger.With("component", "failure_notifier"),
		sinks:    sinks,
		cooldown: opts.Cooldown,
		now:      now,
		lastSent: make(map[string]time.Time),
	}
}

// NotifyPushFailure fans the payload out to all sinks and waits for them.
func (s *Service) NotifyPushFailure(ctx context.Context, payload notify.PushFailurePayload) {
	if len(s.sinks) == 0 {
		return
	}

	if payload.OccurredAt.IsZero() {
		payload.OccurredAt = s.now()
	}
	if !s.admit(payload.EndpointID, payload.OccurredAt) {
		s.logger.DebugContext(ctx, "suppressing push failure alert during cooldown",
			"endpoint_id", payload.EndpointID,
			"request_id", payload.RequestID,
		)
		return
	}

	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
	}

	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.SendPushFailure(ctx, payload); err != nil {
				s.logger.ErrorContext(ctx, "failure notifier delivery error",
					"sink", entry.Name,
					"request_id", payload.RequestID,
					"endpoint_id", payload.EndpointID,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}

// admit records the alert time for endpointID unless one was sent within the cooldown.
func (s *Service) admit(endpointID string, at time.Time) bool {
	if s.cooldown <= 0 || endpointID == "" {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastSent[endpointID]; ok && at.Sub(last) < s.cooldown {
		return false
	}
	s.lastSent[endpointID] = at
	for id, ts := range s.lastSent {
		if at.Sub(ts) >= s.cooldown {
			delete(s.lastSent, id)
		}
	}
	return true
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return len(s.sinks) > 0
}
