package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countCall struct {
	name  string
	value int64
	tags  map[string]string
}

type fakeSink struct {
	mu      sync.Mutex
	counts  []countCall
	timings []string
	gauges  []string
}

func (f *fakeSink) Count(name string, value int64, tags map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts = append(f.counts, countCall{name: name, value: value, tags: tags})
}

func (f *fakeSink) Gauge(name string, _ float64, _ map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gauges = append(f.gauges, name)
}

func (f *fakeSink) Timing(name string, _ time.Duration, _ map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timings = append(f.timings, name)
}

func TestStatsdRecorder_RecordPush(t *testing.T) {
	sink := &fakeSink{}
	StatsdRecorder{Sink: sink}.RecordPush(PushMetric{
		Source:      SourceInline,
		ChannelType: "discord",
		Result:      ResultFailed,
		Attempts:    3,
		Duration:    120 * time.Millisecond,
		Err:         context.DeadlineExceeded,
	})

	require.Len(t, sink.counts, 2)
	assert.Equal(t, "push.result", sink.counts[0].name)
	assert.Equal(t, map[string]string{
		"source":      "inline",
		"channel":     "discord",
		"result":      "failed",
		"error_class": "timeout",
	}, sink.counts[0].tags)
	assert.Equal(t, "push.attempts", sink.counts[1].name)
	assert.Equal(t, int64(3), sink.counts[1].value)
	assert.Equal(t, []string{"push.duration"}, sink.timings)
}

func TestStatsdRecorder_RejectionHasReasonAndNoAttempts(t *testing.T) {
	sink := &fakeSink{}
	StatsdRecorder{Sink: sink}.RecordPush(PushMetric{Source: SourceQueue, Result: ResultFailed, Reason: "endpoint_disabled"})

	require.Len(t, sink.counts, 1)
	assert.Equal(t, "endpoint_disabled", sink.counts[0].tags["reason"])
	assert.Empty(t, sink.timings)
}

func TestStatsdRecorder_NilSink(t *testing.T) {
	assert.NotPanics(t, func() {
		StatsdRecorder{}.RecordPush(PushMetric{})
		StatsdRecorder{}.RecordGroup(GroupMetric{})
	})
}

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)

	rec.RecordPush(PushMetric{Source: SourceInline, ChannelType: "bark", Result: ResultSuccess, Attempts: 1, Duration: time.Second})
	rec.RecordPush(PushMetric{Source: SourceInline, ChannelType: "bark", Result: ResultSuccess, Attempts: 1})
	rec.RecordPush(PushMetric{Source: SourceQueue, ChannelType: "bark", Result: ResultFailed, Attempts: 9})
	rec.RecordGroup(GroupMetric{Mode: "sync", Total: 3, Succeeded: 2, Failed: 1})
	rec.RecordGroup(GroupMetric{Mode: "queue", Total: 4})

	assert.InDelta(t, 2, testutil.ToFloat64(rec.pushes.WithLabelValues("inline", "bark", "success", "", "1")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(rec.pushes.WithLabelValues("queue", "bark", "failed", "", "6+")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(rec.groupMembers.WithLabelValues("sync", ResultSuccess)), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(rec.groupMembers.WithLabelValues("queue", "enqueued")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(rec.pushDuration))
}

func TestNewPrometheusRecorder_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)
	second, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)

	first.RecordPush(PushMetric{Source: SourceInline, ChannelType: "webhook", Result: ResultSuccess, Attempts: 1})
	second.RecordPush(PushMetric{Source: SourceInline, ChannelType: "webhook", Result: ResultSuccess, Attempts: 1})
	assert.InDelta(t, 2, testutil.ToFloat64(first.pushes.WithLabelValues("inline", "webhook", "success", "", "1")), 0)
}

type countingRecorder struct{ pushes, groups int }

func (c *countingRecorder) RecordPush(PushMetric)   { c.pushes++ }
func (c *countingRecorder) RecordGroup(GroupMetric) { c.groups++ }

func TestMulti(t *testing.T) {
	a, b := &countingRecorder{}, &countingRecorder{}
	m := Multi{a, nil, b}
	m.RecordPush(PushMetric{})
	m.RecordGroup(GroupMetric{})
	assert.Equal(t, 1, a.pushes)
	assert.Equal(t, 1, b.groups)

	assert.IsType(t, Nop{}, OrNop(nil))
	assert.Same(t, a, OrNop(a))
}

func TestClassifyUnwrapsToInnermost(t *testing.T) {
	sink := &fakeSink{}
	StatsdRecorder{Sink: sink}.RecordPush(PushMetric{Result: ResultFailed, Err: errors.New("plain")})
	assert.Equal(t, "errors_errorstring", sink.counts[0].tags["error_class"])
}
