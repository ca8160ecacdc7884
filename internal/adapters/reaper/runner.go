// Package reaper provides adapters for running the push reaper.
package reaper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/pushgate/config"
	"github.com/target/pushgate/internal/core"
	"github.com/target/pushgate/internal/data"
	"github.com/target/pushgate/internal/observability/statsd"
	"github.com/target/pushgate/internal/service"
)

// Runner provides a simple adapter to run the reaper loop.
// It constructs the reaper service from the push tables and runs it.
type Runner struct {
	reaper *service.ReaperService
	logger *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB           *sql.DB
	Config       config.ReaperConfig
	QueueBackend config.QueueBackend
	Logger       *slog.Logger
	Metrics      statsd.Sink

	// Optional dependency injection for testing/decoupling
	Leases core.LeaseRequeuer
	Logs   core.PushLogRetention
}

// NewRunner creates a new reaper runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	reaper, err := service.NewReaperService(service.ReaperServiceOptions{
		Leases:  opts.Leases,
		Logs:    opts.Logs,
		Config:  opts.Config,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire reaper service: %w", err)
	}

	return &Runner{reaper: reaper, logger: opts.Logger}, nil
}

// validateRunnerOptions fills in Postgres-backed ports that were not injected.
// Leases are only reaped for the Postgres queue; RabbitMQ redelivers unacked messages itself.
func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	needsDB := opts.Logs == nil || (opts.Leases == nil && opts.QueueBackend != config.QueueBackendRabbitMQ)
	if needsDB && opts.DB == nil {
		return errors.New("database connection is required")
	}
	if opts.Logs == nil {
		opts.Logs = data.NewPushLogRepo(opts.DB, nil)
	}
	if opts.Leases == nil && opts.QueueBackend != config.QueueBackendRabbitMQ {
		opts.Leases = data.NewPushQueueRepo(opts.DB, data.PushQueueRepoOptions{Logger: opts.Logger})
	}
	return nil
}

// Run starts the reaper loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reaper runner")
	return r.reaper.Run(ctx)
}
