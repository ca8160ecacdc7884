package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldsSkipsEmptyValues(t *testing.T) {
	p := PushFailurePayload{RequestID: "req-1", EndpointID: "ep-1", Attempts: 0, Error: "  "}

	assert.Equal(t, []Field{{"Request", "req-1"}, {"Endpoint ID", "ep-1"}}, p.Fields())
}

func TestPayloadDefaults(t *testing.T) {
	now := func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600)) }

	var p PushFailurePayload
	assert.Equal(t, SeverityCritical, p.SeverityOr())
	assert.Equal(t, "unknown", p.EndpointLabel())
	assert.Equal(t, time.UTC, p.Timestamp(now).Location())

	p = PushFailurePayload{Severity: " Error ", EndpointID: "ep-1"}
	assert.Equal(t, SeverityError, p.SeverityOr())
	assert.Equal(t, "ep-1", p.EndpointLabel())

	p.EndpointName = "deploys"
	assert.Equal(t, "deploys", p.EndpointLabel())
}

func TestPosterRetriesUntilSuccess(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if hits.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := NewPoster("test sink", srv.URL, time.Second, 2, nil)
	p.Backoff = func(int) time.Duration { return time.Millisecond }

	require.NoError(t, p.PostJSON(context.Background(), map[string]string{"a": "b"}))
	assert.Equal(t, int32(3), hits.Load())
}

func TestPosterReturnsStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid_token", http.StatusForbidden)
	}))
	defer srv.Close()

	err := NewPoster("test sink", srv.URL, 0, -1, nil).PostJSON(context.Background(), struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test sink 403 Forbidden: invalid_token")
}

func TestPosterStopsWhenContextEnds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	p := NewPoster("test sink", srv.URL, time.Second, 5, nil)
	p.Backoff = func(int) time.Duration {
		cancel()
		return time.Hour
	}

	err := p.PostJSON(ctx, struct{}{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestPosterEncodeError(t *testing.T) {
	err := NewPoster("test sink", "http://127.0.0.1:0", 0, 0, nil).PostJSON(context.Background(), make(chan int))
	require.ErrorContains(t, err, "encode test sink payload")
}
