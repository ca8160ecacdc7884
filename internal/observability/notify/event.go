// Package notify defines the payload and sink contract for push failure alerts.
package notify

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityError    = "error"
)

// PushFailurePayload describes a push that exhausted every dispatch attempt.
type PushFailurePayload struct {
	RequestID    string
	EndpointID   string
	EndpointName string
	ChannelType  string
	Source       string // "inline" or "queue"
	Attempts     int
	Error        string
	ErrorClass   string
	Severity     string
	OccurredAt   time.Time
	Metadata     map[string]string
}

// Sink is a destination for push failure notifications.
type Sink interface {
	SendPushFailure(ctx context.Context, payload PushFailurePayload) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, payload PushFailurePayload) error

// SendPushFailure calls f.
func (f SinkFunc) SendPushFailure(ctx context.Context, payload PushFailurePayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}

// Field is one labelled line of an alert body.
type Field struct {
	Label string
	Value string
}

// Fields lists the non-empty details every sink renders, in display order.
func (p PushFailurePayload) Fields() []Field {
	attempts := ""
	if p.Attempts > 0 {
		attempts = strconv.Itoa(p.Attempts)
	}
	all := []Field{
		{"Request", p.RequestID},
		{"Endpoint ID", p.EndpointID},
		{"Endpoint", p.EndpointName},
		{"Channel", p.ChannelType},
		{"Source", p.Source},
		{"Attempts", attempts},
		{"Error class", p.ErrorClass},
		{"Error", p.Error},
	}
	out := all[:0]
	for _, f := range all {
		if strings.TrimSpace(f.Value) != "" {
			out = append(out, f)
		}
	}
	return out
}

// SeverityOr returns the payload severity, lower-cased, or SeverityCritical when unset.
func (p PushFailurePayload) SeverityOr() string {
	if s := strings.ToLower(strings.TrimSpace(p.Severity)); s != "" {
		return s
	}
	return SeverityCritical
}

// Timestamp returns OccurredAt in UTC, or now when unset.
func (p PushFailurePayload) Timestamp(now func() time.Time) time.Time {
	if p.OccurredAt.IsZero() {
		return now().UTC()
	}
	return p.OccurredAt.UTC()
}

// EndpointLabel names the endpoint for summaries: its name, else its id, else "unknown".
func (p PushFailurePayload) EndpointLabel() string {
	for _, v := range []string{p.EndpointName, p.EndpointID} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return "unknown"
}
