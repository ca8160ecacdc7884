package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/target/pushgate/config"
	"github.com/target/pushgate/internal/core"
	obserrors "github.com/target/pushgate/internal/observability/errors"
	"github.com/target/pushgate/internal/observability/metrics"
	"github.com/target/pushgate/internal/observability/statsd"
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Leases  core.LeaseRequeuer    // Optional: nil when the queue backend manages its own redelivery
	Logs    core.PushLogRetention // Optional: nil disables log retention
	Config  config.ReaperConfig   // Required: reaper configuration
	Logger  *slog.Logger          // Optional: structured logger
	Metrics statsd.Sink           // Optional: metrics sink (StatsD-compatible)
	Now     func() time.Time      // Optional: clock for retention cutoffs
}

// ReaperService keeps the push tables healthy.
//
// This service manages:
// - Returning queue messages whose consumer lease expired, on a fixed interval.
// - Deleting push logs older than the configured max age, on a cron schedule.
type ReaperService struct {
	leases  core.LeaseRequeuer
	logs    core.PushLogRetention
	config  config.ReaperConfig
	logger  *slog.Logger
	metrics statsd.Sink
	now     func() time.Time
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Leases == nil && opts.Logs == nil {
		return nil, errors.New("at least one of LeaseRequeuer or PushLogRetention is required")
	}
	if opts.Config.Interval <= 0 {
		return nil, errors.New("reaper interval must be positive")
	}
	if opts.Logs != nil {
		if _, err := cron.ParseStandard(opts.Config.RetentionSchedule); err != nil {
			return nil, fmt.Errorf("invalid retention schedule %q: %w", opts.Config.RetentionSchedule, err)
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	logger = logger.With("component", "reaper_service")
	logger.Debug("ReaperService initialized",
		"interval", opts.Config.Interval,
		"retention_schedule", opts.Config.RetentionSchedule,
		"log_max_age", opts.Config.LogMaxAge,
	)

	return &ReaperService{
		leases:  opts.Leases,
		logs:    opts.Logs,
		config:  opts.Config,
		logger:  logger,
		metrics: opts.Metrics,
		now:     now,
	}, nil
}

// Run requeues expired leases every interval and prunes logs on the retention schedule
// until the context is cancelled. Returns nil on graceful shutdown.
func (s *ReaperService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting reaper service",
		"interval", s.config.Interval,
		"retention_schedule", s.config.RetentionSchedule,
	)

	// Add jitter so replicas started together do not sweep in lockstep.
	s.waitWithJitter(ctx)
	if ctx.Err() != nil {
		return nil
	}

	if s.logs != nil && s.config.LogMaxAge > 0 {
		scheduler := cron.New()
		if _, err := scheduler.AddFunc(s.config.RetentionSchedule, func() { s.runRetention(ctx) }); err != nil {
			return fmt.Errorf("schedule log retention: %w", err)
		}
		scheduler.Start()
		defer func() { <-scheduler.Stop().Done() }()
	}

	if s.leases == nil {
		<-ctx.Done()
		s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
		return nil
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.runRequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			return nil
		case <-ticker.C:
			s.runRequeue(ctx)
		}
	}
}

// RequeueExpiredLeases returns every message whose lease expired to pending.
func (s *ReaperService) RequeueExpiredLeases(ctx context.Context) (int64, error) {
	if s.leases == nil {
		return 0, nil
	}
	start := time.Now()
	count, err := s.leases.RequeueExpired(ctx)
	s.emitOperationMetric("requeue_leases", count, err, time.Since(start))
	if err != nil {
		return count, fmt.Errorf("requeue expired leases: %w", err)
	}
	if count > 0 {
		s.logger.InfoContext(ctx, "requeued expired queue leases", "count", count)
	}
	return count, nil
}

// PruneLogs deletes push logs older than LogMaxAge in batches until a short batch is seen.
func (s *ReaperService) PruneLogs(ctx context.Context) (int64, error) {
	if s.logs == nil || s.config.LogMaxAge <= 0 {
		return 0, nil
	}

	start := time.Now()
	cutoff := s.now().Add(-s.config.LogMaxAge)
	var total int64
	var err error
	for {
		var count int64
		count, err = s.logs.DeleteLogsOlderThan(ctx, cutoff, s.config.BatchSize)
		total += count
		if err != nil || count < int64(s.config.BatchSize) {
			break
		}
		if err = ctx.Err(); err != nil {
			break
		}
	}

	s.emitOperationMetric("prune_logs", total, err, time.Since(start))
	if err != nil {
		return total, fmt.Errorf("prune push logs: %w", err)
	}
	if total > 0 {
		s.logger.InfoContext(ctx, "deleted old push logs", "count", total, "max_age", s.config.LogMaxAge)
	}
	return total, nil
}

func (s *ReaperService) runRequeue(ctx context.Context) {
	if _, err := s.RequeueExpiredLeases(ctx); err != nil {
		s.logError(ctx, err, "lease requeue")
	}
}

func (s *ReaperService) runRetention(ctx context.Context) {
	if _, err := s.PruneLogs(ctx); err != nil {
		s.logError(ctx, err, "log retention")
	}
}

// waitWithJitter adds a random delay up to 10% of the interval.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	timer := time.NewTimer(jitter)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (s *ReaperService) emitOperationMetric(operation string, count int64, err error, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}

	err = suppressContextCancellation(err)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultFailed
	} else if count == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"operation": operation,
		"result":    result,
	}
	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.operation", 1, tags)
	s.metrics.Timing("reaper.operation_duration", elapsed, metrics.CloneTags(tags))
	if err == nil && count > 0 {
		s.metrics.Count("reaper.rows_processed", count, metrics.CloneTags(tags))
	}
	if err == nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(s.now().Unix()), map[string]string{"operation": operation})
	}
}

func (s *ReaperService) logError(ctx context.Context, err error, label string) {
	if isContextCancellation(err) {
		s.logger.DebugContext(ctx, label+" cancelled by context", "error", err)
		return
	}
	s.logger.ErrorContext(ctx, label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
