package service

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/target/pushgate/internal/core"
	"github.com/target/pushgate/internal/domain/model"
	"github.com/target/pushgate/internal/observability/metrics"
)

// Default inline retry backoff.
const (
	DefaultBackoffBase = 300 * time.Millisecond
	DefaultBackoffMax  = 2 * time.Second
)

// BackoffConfig bounds the wait between inline dispatch attempts.
type BackoffConfig struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait after the given failed attempt (1-based): min(Max, Base*2^(attempt-1)).
func (b BackoffConfig) Delay(attempt int) time.Duration {
	base, maxDelay := b.Base, b.Max
	if base <= 0 {
		base = DefaultBackoffBase
	}
	if maxDelay <= 0 {
		maxDelay = DefaultBackoffMax
	}
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxDelay {
			return maxDelay
		}
	}
	return min(d, maxDelay)
}

// ExecuteParams is the input of one push.
type ExecuteParams struct {
	EndpointID string
	// RequestID is generated when empty.
	RequestID string
	// Body is the decoded JSON payload the rule is rendered against.
	Body any
}

// PushExecutorOptions groups dependencies for PushExecutor.
type PushExecutorOptions struct {
	Endpoints EndpointResolver       // Required: endpoint snapshot lookup (normally the cache)
	Logs      core.PushLogRepository // Required: push log sink
	Sender    MessageSender          // Required: provider transport
	Backoff   BackoffConfig          // Optional: defaults to 300ms base, 2s cap
	Metrics   metrics.Recorder       // Optional
	Notifier  FailureNotifier        // Optional: alerted when every attempt failed
	Logger    *slog.Logger           // Optional

	// Sleep overrides the backoff wait. Optional.
	Sleep func(context.Context, time.Duration) error
}

// PushExecutor resolves an endpoint, renders its rule and dispatches with bounded inline retries.
// Every call writes exactly one push log row.
type PushExecutor struct {
	pipeline
	backoff BackoffConfig
	sleep   func(context.Context, time.Duration) error
}

// NewPushExecutor constructs a PushExecutor.
func NewPushExecutor(opts PushExecutorOptions) (*PushExecutor, error) {
	p, err := newPipeline(opts.Endpoints, opts.Logs, opts.Sender, opts.Metrics, opts.Logger, "push_executor")
	if err != nil {
		return nil, err
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	p.notifier = opts.Notifier
	return &PushExecutor{pipeline: p, backoff: opts.Backoff, sleep: sleep}, nil
}

// Execute runs one push to completion and never returns an error: every outcome is
// carried by the result and recorded in the push log.
//
// Dispatch runs on a context detached from ctx's cancellation, so a caller that goes
// away does not abort in-flight retries.
func (e *PushExecutor) Execute(ctx context.Context, params ExecuteParams) model.PushResult {
	start := time.Now()
	requestID := params.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	ctx = context.WithoutCancel(ctx)

	result := model.PushResult{RequestID: requestID, EndpointID: params.EndpointID}

	pr, ep, rej := e.prepare(ctx, params.EndpointID, params.Body)
	if rej != nil {
		result.HTTPStatus = rej.status
		result.ResponseBody = rej.body
		e.writeLog(ctx, requestID, params.EndpointID, ep, model.PushStatusFailed, rej.body)
		e.metrics.RecordPush(metrics.PushMetric{
			Source:      metrics.SourceInline,
			ChannelType: channelType(ep),
			Result:      metrics.ResultFailed,
			Reason:      rej.reason,
			Duration:    time.Since(start),
		})
		e.logger.InfoContext(ctx, "push rejected",
			"request_id", requestID,
			"endpoint_id", params.EndpointID,
			"http_status", rej.status,
			"reason", rej.reason)
		return result
	}

	attempts, err := e.dispatch(ctx, requestID, pr)
	m := metrics.PushMetric{
		Source:      metrics.SourceInline,
		ChannelType: channelType(pr.ep),
		Attempts:    attempts,
		Duration:    time.Since(start),
		Err:         err,
	}
	if err != nil {
		result.HTTPStatus = http.StatusBadGateway
		result.ResponseBody = model.TruncateResponseBody(err.Error())
		m.Result = metrics.ResultFailed
		e.writeLog(ctx, requestID, params.EndpointID, pr.ep, model.PushStatusFailed, err.Error())
		e.logger.WarnContext(ctx, "push failed",
			"request_id", requestID,
			"endpoint_id", params.EndpointID,
			"channel_type", m.ChannelType,
			"attempts", attempts,
			"error", err)
		e.notifyExhausted(ctx, metrics.SourceInline, requestID, pr, attempts, err)
	} else {
		result.OK = true
		result.HTTPStatus = http.StatusOK
		m.Result = metrics.ResultSuccess
		e.writeLog(ctx, requestID, params.EndpointID, pr.ep, model.PushStatusSuccess, "")
		e.logger.InfoContext(ctx, "push delivered",
			"request_id", requestID,
			"endpoint_id", params.EndpointID,
			"channel_type", m.ChannelType,
			"attempts", attempts)
	}
	e.metrics.RecordPush(m)
	return result
}

// dispatch tries the provider up to MaxAttempts times and returns the attempts made
// and the last error, or nil on the first success.
func (e *PushExecutor) dispatch(ctx context.Context, requestID string, pr *prepared) (int, error) {
	maxAttempts := pr.ep.MaxAttempts()
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = e.send(ctx, pr)
		if lastErr == nil {
			return attempt, nil
		}
		if attempt == maxAttempts {
			break
		}

		delay := e.backoff.Delay(attempt)
		e.logger.DebugContext(ctx, "push attempt failed, backing off",
			"request_id", requestID,
			"endpoint_id", pr.ep.ID,
			"attempt", attempt,
			"delay", delay,
			"error", lastErr)
		if err := e.sleep(ctx, delay); err != nil {
			return attempt, lastErr
		}
	}
	return maxAttempts, lastErr
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
