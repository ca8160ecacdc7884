// Package pagerduty raises push failure incidents through the PagerDuty Events API v2.
package pagerduty

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/target/pushgate/internal/observability/notify"
)

// APIEndpoint is the PagerDuty Events API v2 ingest URL.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

// Config captures runtime configuration for the PagerDuty sink.
type Config struct {
	// EventsURL defaults to APIEndpoint.
	EventsURL  string
	RoutingKey string
	Source     string
	Component  string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
}

// Client publishes trigger events.
type Client struct {
	poster     *notify.Poster
	routingKey string
	source     string
	component  string
	now        func() time.Time
}

type event struct {
	RoutingKey  string       `json:"routing_key"`
	EventAction string       `json:"event_action"`
	DedupKey    string       `json:"dedup_key,omitempty"`
	Payload     eventPayload `json:"payload"`
}

type eventPayload struct {
	Summary       string         `json:"summary"`
	Severity      string         `json:"severity"`
	Source        string         `json:"source"`
	Component     string         `json:"component,omitempty"`
	Timestamp     string         `json:"timestamp"`
	CustomDetails map[string]any `json:"custom_details,omitempty"`
}

// NewClient constructs a PagerDuty events client. A routing key is required.
func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.RoutingKey)
	if key == "" {
		return nil, errors.New("pagerduty routing key is required")
	}

	eventsURL := strings.TrimSpace(cfg.EventsURL)
	if eventsURL == "" {
		eventsURL = APIEndpoint
	}

	return &Client{
		poster:     notify.NewPoster("pagerduty api", eventsURL, cfg.Timeout, cfg.RetryLimit, cfg.Client),
		routingKey: key,
		source:     orDefault(cfg.Source, "pushgate"),
		component:  orDefault(cfg.Component, "push-dispatch"),
		now:        time.Now,
	}, nil
}

// SendPushFailure submits a trigger event.
func (c *Client) SendPushFailure(ctx context.Context, payload notify.PushFailurePayload) error {
	return c.poster.PostJSON(ctx, c.buildEvent(payload))
}

// buildEvent dedups on the endpoint so repeated failures of one endpoint update a single incident.
func (c *Client) buildEvent(payload notify.PushFailurePayload) event {
	custom := make(map[string]any, len(payload.Metadata)+8)
	for k, v := range payload.Metadata {
		custom[k] = v
	}
	for k, v := range map[string]any{
		"request_id":    payload.RequestID,
		"endpoint_id":   payload.EndpointID,
		"endpoint_name": payload.EndpointName,
		"channel_type":  payload.ChannelType,
		"source":        payload.Source,
		"attempts":      payload.Attempts,
		"error":         payload.Error,
		"error_class":   payload.ErrorClass,
	} {
		custom[k] = v
	}

	var dedupKey string
	if id := strings.TrimSpace(payload.EndpointID); id != "" {
		dedupKey = "push:" + id
	}

	return event{
		RoutingKey:  c.routingKey,
		EventAction: "trigger",
		DedupKey:    dedupKey,
		Payload: eventPayload{
			Summary: fmt.Sprintf("Push to %s (%s) failed after %d attempts",
				payload.EndpointLabel(), orDefault(payload.ChannelType, "unknown"), payload.Attempts),
			Severity:      payload.SeverityOr(),
			Source:        c.source,
			Component:     c.component,
			Timestamp:     payload.Timestamp(c.now).Format(time.RFC3339),
			CustomDetails: custom,
		},
	}
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
