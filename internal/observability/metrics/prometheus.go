package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder exports push outcomes as Prometheus collectors.
//
// Label cardinality is bounded: channel is the closed provider enum, reason is one
// of the fixed rejection reasons and attempts is bucketed to 0..5 and 6+.
type PrometheusRecorder struct {
	pushes        *prometheus.CounterVec
	pushDuration  *prometheus.HistogramVec
	groups        *prometheus.CounterVec
	groupMembers  *prometheus.CounterVec
	groupDuration *prometheus.HistogramVec
}

var _ Recorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder creates the collectors and registers them with reg.
// Collectors already registered by an earlier recorder are reused.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	r := &PrometheusRecorder{
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pushgate",
			Name:      "pushes_total",
			Help:      "Terminal push outcomes by source, channel type, result and rejection reason.",
		}, []string{"source", "channel", "result", "reason", "attempts"}),
		pushDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pushgate",
			Name:      "push_duration_seconds",
			Help:      "Wall time of a push including inline retries.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"source", "channel", "result"}),
		groups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pushgate",
			Name:      "group_dispatches_total",
			Help:      "Group pushes by delivery mode.",
		}, []string{"mode"}),
		groupMembers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pushgate",
			Name:      "group_members_total",
			Help:      "Group members dispatched or enqueued, by mode and result.",
		}, []string{"mode", "result"}),
		groupDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pushgate",
			Name:      "group_duration_seconds",
			Help:      "Wall time of a group push.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
	}

	var err error
	if r.pushes, err = register(reg, r.pushes); err != nil {
		return nil, err
	}
	if r.pushDuration, err = register(reg, r.pushDuration); err != nil {
		return nil, err
	}
	if r.groups, err = register(reg, r.groups); err != nil {
		return nil, err
	}
	if r.groupMembers, err = register(reg, r.groupMembers); err != nil {
		return nil, err
	}
	if r.groupDuration, err = register(reg, r.groupDuration); err != nil {
		return nil, err
	}
	return r, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordPush implements Recorder.
func (r *PrometheusRecorder) RecordPush(in PushMetric) {
	r.pushes.WithLabelValues(in.Source, in.ChannelType, in.Result, in.Reason, attemptsLabel(in.Attempts)).Inc()
	if in.Duration > 0 {
		r.pushDuration.WithLabelValues(in.Source, in.ChannelType, in.Result).Observe(in.Duration.Seconds())
	}
}

// RecordGroup implements Recorder.
func (r *PrometheusRecorder) RecordGroup(in GroupMetric) {
	r.groups.WithLabelValues(in.Mode).Inc()
	if in.Mode == "sync" {
		r.groupMembers.WithLabelValues(in.Mode, ResultSuccess).Add(float64(in.Succeeded))
		r.groupMembers.WithLabelValues(in.Mode, ResultFailed).Add(float64(in.Failed))
	} else {
		r.groupMembers.WithLabelValues(in.Mode, "enqueued").Add(float64(in.Total))
	}
	if in.Duration > 0 {
		r.groupDuration.WithLabelValues(in.Mode).Observe(in.Duration.Seconds())
	}
}
