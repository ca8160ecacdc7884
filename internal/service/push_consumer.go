package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/target/pushgate/internal/core"
	"github.com/target/pushgate/internal/domain/model"
	"github.com/target/pushgate/internal/observability/metrics"
)

// DefaultQueueRetryDelay is the redelivery delay after a failed queued dispatch.
const DefaultQueueRetryDelay = 5 * time.Second

// Delivery is one message handed to the consumer by a queue backend.
type Delivery struct {
	Body []byte
	// Attempts counts deliveries of this message including the current one.
	Attempts int
}

// Action tells the queue backend what to do with a delivery.
type Action string

const (
	ActionAck   Action = "ack"
	ActionRetry Action = "retry"
)

// Decision is the consumer's verdict on a delivery.
type Decision struct {
	Action Action
	// Delay before redelivery; set only for ActionRetry.
	Delay time.Duration
	// Reason is a short description for backend bookkeeping (last_error on retry).
	Reason string
}

// PushConsumerOptions groups dependencies for PushConsumer.
type PushConsumerOptions struct {
	Endpoints  EndpointResolver       // Required
	Logs       core.PushLogRepository // Required
	Sender     MessageSender          // Required
	RetryDelay time.Duration          // Optional: defaults to 5s
	Metrics    metrics.Recorder
	Notifier   FailureNotifier // Optional: alerted when the last delivery fails
	Logger     *slog.Logger
}

// PushConsumer is the queue-driven twin of PushExecutor. It makes a single dispatch
// attempt per delivery and leaves retry spacing to the queue.
//
// A push log row is written only when a message reaches a terminal decision;
// failed deliveries that will be redelivered are not logged.
type PushConsumer struct {
	pipeline
	retryDelay time.Duration
}

// NewPushConsumer constructs a PushConsumer.
func NewPushConsumer(opts PushConsumerOptions) (*PushConsumer, error) {
	p, err := newPipeline(opts.Endpoints, opts.Logs, opts.Sender, opts.Metrics, opts.Logger, "push_consumer")
	if err != nil {
		return nil, err
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = DefaultQueueRetryDelay
	}
	p.notifier = opts.Notifier
	return &PushConsumer{pipeline: p, retryDelay: delay}, nil
}

// Handle processes one delivery and returns the ack/retry decision. It never fails.
func (c *PushConsumer) Handle(ctx context.Context, d Delivery) Decision {
	start := time.Now()
	msg, err := model.DecodePushMessage(d.Body)
	if err != nil {
		c.logger.WarnContext(ctx, "dropping malformed push message",
			"attempts", d.Attempts,
			"payload", truncateForLog(d.Body),
			"error", err)
		return Decision{Action: ActionAck, Reason: "malformed"}
	}

	var body any
	if len(msg.Body) > 0 {
		if err := json.Unmarshal(msg.Body, &body); err != nil {
			c.logger.WarnContext(ctx, "dropping push message with undecodable body",
				"request_id", msg.RequestID,
				"endpoint_id", msg.EndpointID,
				"error", err)
			return Decision{Action: ActionAck, Reason: "malformed"}
		}
	}

	pr, ep, rej := c.prepare(ctx, msg.EndpointID, body)
	if rej != nil {
		return c.reject(ctx, msg, d, ep, rej, start)
	}

	sendErr := c.send(ctx, pr)
	m := metrics.PushMetric{
		Source:      metrics.SourceQueue,
		ChannelType: channelType(pr.ep),
		Attempts:    d.Attempts,
		Duration:    time.Since(start),
		Err:         sendErr,
	}
	if sendErr == nil {
		m.Result = metrics.ResultSuccess
		c.writeLog(ctx, msg.RequestID, msg.EndpointID, pr.ep, model.PushStatusSuccess, "")
		c.metrics.RecordPush(m)
		c.logger.InfoContext(ctx, "queued push delivered",
			"request_id", msg.RequestID,
			"endpoint_id", msg.EndpointID,
			"attempts", d.Attempts)
		return Decision{Action: ActionAck}
	}

	if d.Attempts < pr.ep.MaxAttempts() {
		c.logger.InfoContext(ctx, "queued push failed, will retry",
			"request_id", msg.RequestID,
			"endpoint_id", msg.EndpointID,
			"attempts", d.Attempts,
			"max_attempts", pr.ep.MaxAttempts(),
			"error", sendErr)
		return Decision{Action: ActionRetry, Delay: c.retryDelay, Reason: sendErr.Error()}
	}

	m.Result = metrics.ResultFailed
	c.writeLog(ctx, msg.RequestID, msg.EndpointID, pr.ep, model.PushStatusFailed, sendErr.Error())
	c.metrics.RecordPush(m)
	c.logger.WarnContext(ctx, "queued push failed, attempts exhausted",
		"request_id", msg.RequestID,
		"endpoint_id", msg.EndpointID,
		"attempts", d.Attempts,
		"error", sendErr)
	c.notifyExhausted(ctx, metrics.SourceQueue, msg.RequestID, pr, d.Attempts, sendErr)
	return Decision{Action: ActionAck, Reason: sendErr.Error()}
}

// reject handles outcomes decided before dispatch. Configuration problems are terminal;
// a failed store read is transient and goes back to the queue while attempts remain.
func (c *PushConsumer) reject(ctx context.Context, msg model.PushMessage, d Delivery, ep *model.EndpointWithChannel, rej *rejection, start time.Time) Decision {
	if rej.reason == "endpoint_lookup_failed" && d.Attempts < model.DefaultRetryCount+1 {
		c.logger.WarnContext(ctx, "endpoint lookup failed, will retry",
			"request_id", msg.RequestID,
			"endpoint_id", msg.EndpointID,
			"attempts", d.Attempts,
			"error", rej.body)
		return Decision{Action: ActionRetry, Delay: c.retryDelay, Reason: rej.body}
	}

	c.writeLog(ctx, msg.RequestID, msg.EndpointID, ep, model.PushStatusFailed, rej.body)
	c.metrics.RecordPush(metrics.PushMetric{
		Source:      metrics.SourceQueue,
		ChannelType: channelType(ep),
		Result:      metrics.ResultFailed,
		Reason:      rej.reason,
		Duration:    time.Since(start),
	})
	c.logger.WarnContext(ctx, "queued push rejected",
		"request_id", msg.RequestID,
		"endpoint_id", msg.EndpointID,
		"reason", rej.reason)
	return Decision{Action: ActionAck, Reason: rej.reason}
}

func truncateForLog(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
