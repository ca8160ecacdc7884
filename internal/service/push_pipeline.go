package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/target/pushgate/internal/core"
	"github.com/target/pushgate/internal/domain/model"
	obserrors "github.com/target/pushgate/internal/observability/errors"
	"github.com/target/pushgate/internal/observability/metrics"
	"github.com/target/pushgate/internal/observability/notify"
	"github.com/target/pushgate/internal/service/template"
)

// EndpointResolver returns the endpoint snapshot for an id, or nil when it does not exist.
// core.EndpointCacheService implements it.
type EndpointResolver interface {
	Get(ctx context.Context, id string) (*model.EndpointWithChannel, error)
}

// MessageSender delivers a rendered message through the provider of ch.
// channels.Sender implements it.
type MessageSender interface {
	Send(ctx context.Context, ch *model.Channel, msg map[string]any, timeout time.Duration) error
}

// FailureNotifier is told about pushes that exhausted every dispatch attempt.
// failurenotifier.Service implements it.
type FailureNotifier interface {
	NotifyPushFailure(ctx context.Context, payload notify.PushFailurePayload)
}

// rejection is a terminal outcome decided before any provider call.
type rejection struct {
	status int
	reason string
	body   string
}

// pipeline holds the resolve, render and log steps shared by PushExecutor and PushConsumer.
type pipeline struct {
	endpoints EndpointResolver
	logs      core.PushLogRepository
	sender    MessageSender
	metrics   metrics.Recorder
	notifier  FailureNotifier
	logger    *slog.Logger
}

// prepared is an endpoint that passed validation with its rendered message.
type prepared struct {
	ep  *model.EndpointWithChannel
	msg map[string]any
}

func (p *pipeline) prepare(ctx context.Context, endpointID string, body any) (*prepared, *model.EndpointWithChannel, *rejection) {
	ep, err := p.endpoints.Get(ctx, endpointID)
	if err != nil {
		return nil, nil, &rejection{
			status: http.StatusInternalServerError,
			reason: "endpoint_lookup_failed",
			body:   "endpoint_lookup_failed: " + err.Error(),
		}
	}
	if !ep.Dispatchable() {
		return nil, ep, &rejection{status: http.StatusNotFound, reason: model.ResponseEndpointNotFound, body: model.ResponseEndpointNotFound}
	}
	if !ep.Active() || ep.Channel.Status == model.StatusInactive {
		return nil, ep, &rejection{status: http.StatusForbidden, reason: model.ResponseEndpointDisabled, body: model.ResponseEndpointDisabled}
	}

	msg, err := template.Prepare(ep.Rule, body)
	if err != nil {
		var jsonErr *template.TemplateJSONError
		if errors.As(err, &jsonErr) {
			return nil, ep, &rejection{status: http.StatusBadRequest, reason: model.ResponseTemplateJSON, body: model.ResponseTemplateJSON + ": " + jsonErr.Error()}
		}
		return nil, ep, &rejection{status: http.StatusBadRequest, reason: model.ResponseTemplateError, body: model.ResponseTemplateError + ": " + err.Error()}
	}
	return &prepared{ep: ep, msg: msg}, ep, nil
}

func (p *pipeline) send(ctx context.Context, pr *prepared) error {
	return p.sender.Send(ctx, pr.ep.Channel, pr.msg, pr.ep.Timeout())
}

// writeLog appends the single log row of a push. A failed write is logged and swallowed.
func (p *pipeline) writeLog(ctx context.Context, requestID, endpointID string, ep *model.EndpointWithChannel, status model.PushStatus, body string) {
	entry := &model.PushLog{
		RequestID:  requestID,
		EndpointID: endpointID,
		Status:     status,
	}
	if ep != nil && ep.UserID != "" {
		uid := ep.UserID
		entry.UserID = &uid
	}
	if body != "" {
		truncated := model.TruncateResponseBody(body)
		entry.ResponseBody = &truncated
	}

	if err := p.logs.Insert(ctx, entry); err != nil {
		p.logger.ErrorContext(ctx, "failed to write push log",
			"request_id", requestID,
			"endpoint_id", endpointID,
			"status", status,
			"error", err)
	}
}

// notifyExhausted alerts the notifier in the background so slow sinks never hold up dispatch.
func (p *pipeline) notifyExhausted(ctx context.Context, source, requestID string, pr *prepared, attempts int, err error) {
	if p.notifier == nil || err == nil {
		return
	}
	payload := notify.PushFailurePayload{
		RequestID:    requestID,
		EndpointID:   pr.ep.ID,
		EndpointName: pr.ep.Name,
		ChannelType:  channelType(pr.ep),
		Source:       source,
		Attempts:     attempts,
		Error:        model.TruncateResponseBody(err.Error()),
		ErrorClass:   obserrors.Classify(err),
		OccurredAt:   time.Now().UTC(),
	}
	go p.notifier.NotifyPushFailure(context.WithoutCancel(ctx), payload)
}

func channelType(ep *model.EndpointWithChannel) string {
	if ep == nil || ep.Channel == nil {
		return ""
	}
	return string(ep.Channel.Type)
}

func (p *pipeline) validate() error {
	switch {
	case p.endpoints == nil:
		return errors.New("endpoint resolver is required")
	case p.logs == nil:
		return errors.New("push log repository is required")
	case p.sender == nil:
		return errors.New("message sender is required")
	}
	return nil
}

func newPipeline(endpoints EndpointResolver, logs core.PushLogRepository, sender MessageSender, rec metrics.Recorder, logger *slog.Logger, component string) (pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := pipeline{
		endpoints: endpoints,
		logs:      logs,
		sender:    sender,
		metrics:   metrics.OrNop(rec),
		logger:    logger.With("component", component),
	}
	if err := p.validate(); err != nil {
		return pipeline{}, fmt.Errorf("%s: %w", component, err)
	}
	return p, nil
}
