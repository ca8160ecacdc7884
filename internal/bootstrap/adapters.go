package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/pushgate/config"
	"github.com/target/pushgate/internal/adapters/pushrunner"
	"github.com/target/pushgate/internal/adapters/reaper"
	"github.com/target/pushgate/internal/observability/statsd"
)

// ConsumerConfig contains configuration for the push queue consumer.
type ConsumerConfig struct {
	Config   *config.AppConfig
	Services *ServiceContainer
	Logger   *slog.Logger
}

// RunConsumer drains the configured queue backend through the push consumer.
func RunConsumer(ctx context.Context, cfg ConsumerConfig) error {
	if cfg.Config == nil || cfg.Services == nil || cfg.Services.Consumer == nil {
		return errors.New("consumer requires config and a wired push consumer")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Services.Broker != nil {
		consumer, err := cfg.Services.Broker.Consumer(cfg.Services.Consumer)
		if err != nil {
			return fmt.Errorf("create rabbitmq consumer: %w", err)
		}
		defer func() {
			if cerr := consumer.Close(); cerr != nil {
				logger.Warn("close rabbitmq consumer", "error", cerr)
			}
		}()
		logger.InfoContext(ctx, "starting push consumer", "backend", config.QueueBackendRabbitMQ)
		return consumer.Run(ctx)
	}

	if cfg.Services.PostgresQueue == nil {
		return errors.New("consumer requires a push queue")
	}
	runner, err := pushrunner.NewRunner(pushrunner.RunnerOptions{
		Queue:        cfg.Services.PostgresQueue,
		Handler:      cfg.Services.Consumer,
		Logger:       logger,
		Lease:        cfg.Config.Consumer.Lease,
		Concurrency:  cfg.Config.Consumer.Concurrency,
		PollInterval: cfg.Config.Consumer.PollInterval,
	})
	if err != nil {
		return fmt.Errorf("create push runner: %w", err)
	}

	logger.InfoContext(ctx, "starting push consumer",
		"backend", config.QueueBackendPostgres,
		"concurrency", cfg.Config.Consumer.Concurrency,
	)
	return runner.Run(ctx)
}

// ReaperConfig contains configuration for reaper.
type ReaperConfig struct {
	DB           *sql.DB
	Logger       *slog.Logger
	Config       config.ReaperConfig
	QueueBackend config.QueueBackend
	Metrics      statsd.Sink
}

// RunReaper starts the reaper service.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		DB:           cfg.DB,
		Config:       cfg.Config,
		QueueBackend: cfg.QueueBackend,
		Logger:       cfg.Logger,
		Metrics:      cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create reaper runner: %w", err)
	}

	return runner.Run(ctx)
}
