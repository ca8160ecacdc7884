// Package metrics records push dispatch outcomes to statsd and Prometheus.
package metrics

import (
	"strconv"
	"time"

	obserrors "github.com/target/pushgate/internal/observability/errors"
	"github.com/target/pushgate/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
	// ResultNoop marks maintenance passes that found nothing to do.
	ResultNoop = "noop"
)

// Dispatch sources.
const (
	SourceInline = "inline"
	SourceQueue  = "queue"
)

// PushMetric captures one terminal push outcome.
type PushMetric struct {
	Source      string
	ChannelType string
	Result      string
	// Reason is the rejection reason for pushes that never reached a provider
	// (endpoint_disabled, template_error, ...). Empty for dispatched pushes.
	Reason   string
	Attempts int
	Duration time.Duration
	Err      error
}

// GroupMetric captures one group fan-out.
type GroupMetric struct {
	Mode      string
	Total     int
	Succeeded int
	Failed    int
	Duration  time.Duration
}

// Recorder receives push and group outcomes.
type Recorder interface {
	RecordPush(PushMetric)
	RecordGroup(GroupMetric)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordPush(PushMetric)   {}
func (Nop) RecordGroup(GroupMetric) {}

// Multi fans out to every non-nil recorder.
type Multi []Recorder

func (m Multi) RecordPush(in PushMetric) {
	for _, r := range m {
		if r != nil {
			r.RecordPush(in)
		}
	}
}

func (m Multi) RecordGroup(in GroupMetric) {
	for _, r := range m {
		if r != nil {
			r.RecordGroup(in)
		}
	}
}

// OrNop returns r, or Nop when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop{}
	}
	return r
}

// StatsdRecorder emits push metrics through a statsd sink.
type StatsdRecorder struct {
	Sink statsd.Sink
}

// RecordPush emits push.result, push.attempts and push.duration.
func (s StatsdRecorder) RecordPush(in PushMetric) {
	if s.Sink == nil {
		return
	}

	tags := pushTags(in)
	if in.Err != nil && in.Result == ResultFailed {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	s.Sink.Count("push.result", 1, tags)
	if in.Attempts > 0 {
		s.Sink.Count("push.attempts", int64(in.Attempts), CloneTags(tags))
	}
	if in.Duration > 0 {
		s.Sink.Timing("push.duration", in.Duration, CloneTags(tags))
	}
}

// RecordGroup emits group.dispatch and group.members.
func (s StatsdRecorder) RecordGroup(in GroupMetric) {
	if s.Sink == nil {
		return
	}
	tags := map[string]string{"mode": in.Mode}
	s.Sink.Count("group.dispatch", 1, tags)
	s.Sink.Gauge("group.members", float64(in.Total), CloneTags(tags))
	if in.Mode == "sync" {
		s.Sink.Count("group.members.success", int64(in.Succeeded), CloneTags(tags))
		s.Sink.Count("group.members.failed", int64(in.Failed), CloneTags(tags))
	}
	if in.Duration > 0 {
		s.Sink.Timing("group.duration", in.Duration, CloneTags(tags))
	}
}

func pushTags(in PushMetric) map[string]string {
	tags := map[string]string{
		"source":  in.Source,
		"channel": in.ChannelType,
		"result":  in.Result,
	}
	if in.Reason != "" {
		tags["reason"] = in.Reason
	}
	return tags
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func attemptsLabel(n int) string {
	if n > 5 {
		return "6+"
	}
	return strconv.Itoa(n)
}
