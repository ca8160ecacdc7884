package pagerduty

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/target/pushgate/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error when routing key missing")
	}
}

func TestBuildEventDefaults(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key", Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ev := client.buildEvent(notify.PushFailurePayload{
		RequestID:    "req-1",
		EndpointID:   "ep-9",
		EndpointName: "deploys",
		ChannelType:  "telegram",
		Attempts:     3,
		Error:        "boom",
		ErrorClass:   "provider_5xx",
		Metadata:     map[string]string{"error": "shadowed", "region": "eu"},
	})

	if ev.Payload.Severity != notify.SeverityCritical {
		t.Fatalf("expected default severity, got %v", ev.Payload.Severity)
	}
	if ev.Payload.Source != "pushgate" || ev.Payload.Component != "push-dispatch" {
		t.Fatalf("unexpected source/component %q/%q", ev.Payload.Source, ev.Payload.Component)
	}
	if ev.Payload.Summary != "Push to deploys (telegram) failed after 3 attempts" {
		t.Fatalf("unexpected summary %v", ev.Payload.Summary)
	}

	custom := ev.Payload.CustomDetails
	for _, key := range []string{"request_id", "endpoint_id", "channel_type", "error", "error_class", "region"} {
		if _, exists := custom[key]; !exists {
			t.Fatalf("expected key %s in custom details", key)
		}
	}
	if custom["error"] != "boom" {
		t.Fatalf("metadata must not override payload fields, got %v", custom["error"])
	}

	if ev.DedupKey != "push:ep-9" {
		t.Fatalf("expected dedup key per endpoint, got %v", ev.DedupKey)
	}
}

func TestBuildEventWithoutEndpoint(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ev := client.buildEvent(notify.PushFailurePayload{Severity: "ERROR"})
	if ev.DedupKey != "" {
		t.Fatalf("expected no dedup key, got %q", ev.DedupKey)
	}
	if ev.Payload.Severity != notify.SeverityError {
		t.Fatalf("expected lower-cased severity, got %q", ev.Payload.Severity)
	}
	if ev.Payload.Summary != "Push to unknown (unknown) failed after 0 attempts" {
		t.Fatalf("unexpected summary %q", ev.Payload.Summary)
	}
}

func TestSendPushFailurePostsToEventsURL(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client, err := NewClient(Config{EventsURL: srv.URL, RoutingKey: "rk"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := client.SendPushFailure(context.Background(), notify.PushFailurePayload{EndpointID: "ep-1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["routing_key"] != "rk" || got["event_action"] != "trigger" || got["dedup_key"] != "push:ep-1" {
		t.Fatalf("unexpected event %v", got)
	}
}

func TestSendPushFailureStopsAtRetryLimit(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "bad routing key", http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewClient(Config{EventsURL: srv.URL, RoutingKey: "rk", RetryLimit: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client.poster.Backoff = func(int) time.Duration { return time.Millisecond }

	if err := client.SendPushFailure(context.Background(), notify.PushFailurePayload{}); err == nil {
		t.Fatal("expected error")
	}
	if got := hits.Load(); got != 3 {
		t.Fatalf("expected 3 requests, got %d", got)
	}
}
