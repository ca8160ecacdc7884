package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/target/pushgate/config"
	"github.com/target/pushgate/internal/adapters/rabbitmq"
	"github.com/target/pushgate/internal/channels"
	"github.com/target/pushgate/internal/core"
	"github.com/target/pushgate/internal/data"
	httpx "github.com/target/pushgate/internal/http"
	"github.com/target/pushgate/internal/observability/metrics"
	"github.com/target/pushgate/internal/observability/notify/pagerduty"
	"github.com/target/pushgate/internal/observability/notify/slack"
	"github.com/target/pushgate/internal/observability/statsd"
	"github.com/target/pushgate/internal/service"
	"github.com/target/pushgate/internal/service/failurenotifier"
)

// ServiceContainer holds the wired dispatch engine.
type ServiceContainer struct {
	Cache    *core.EndpointCacheService
	Sender   *channels.Sender
	Executor *service.PushExecutor
	Consumer *service.PushConsumer
	Groups   service.GroupDispatcher
	PushLogs *data.PushLogRepo

	// Queue is the producer side of the durable queue; nil when nothing enqueues.
	Queue core.PushQueue
	// PostgresQueue is set when the queue lives in Postgres (consumer and reaper use it).
	PostgresQueue *data.PushQueueRepo
	// Broker is set when the queue lives in RabbitMQ.
	Broker *rabbitmq.Broker

	Health        []httpx.HealthCheck
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink     *statsd.Client
	Recorder        metrics.Recorder
	MetricsHandler  http.Handler
	FailureNotifier *failurenotifier.Service
}

// Close releases the broker connection and the metrics socket.
func (c *ServiceContainer) Close() error {
	var errs []error
	if c.Broker != nil {
		errs = append(errs, c.Broker.Close())
	}
	if c.Observability.MetricsSink != nil {
		errs = append(errs, c.Observability.MetricsSink.Close())
	}
	return errors.Join(errs...)
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var recorders metrics.Multi
	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewFromConfig(cfg.Metrics, obsLogger, nil)
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
			recorders = append(recorders, metrics.StatsdRecorder{Sink: client})
		}
	}

	var handler http.Handler
	if cfg.Metrics.PrometheusEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		rec, err := metrics.NewPrometheusRecorder(reg)
		if err != nil {
			obsLogger.Error("failed to register prometheus collectors", "error", err)
		} else {
			recorders = append(recorders, rec)
			handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
		}
	}

	var recorder metrics.Recorder = metrics.Nop{}
	if len(recorders) > 0 {
		recorder = recorders
	}

	return ObservabilityContainer{
		MetricsSink:     metricsSink,
		Recorder:        recorder,
		MetricsHandler:  handler,
		FailureNotifier: buildFailureNotifier(obsLogger, cfg.Notifications),
	}
}

func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	if !cfg.Enabled || !cfg.AnySinkEnabled() {
		return failurenotifier.NewService(failurenotifier.Options{
			Logger: baseLogger.With("component", "failure_notifier"),
		})
	}

	sinks := make([]failurenotifier.SinkRegistration, 0, 2)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL: cfg.Slack.WebhookURL,
			Channel:    cfg.Slack.Channel,
			Username:   cfg.Slack.Username,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "slack", Sink: client})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "pagerduty", Sink: client})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger:   baseLogger.With("component", "failure_notifier"),
		Sinks:    sinks,
		Cooldown: cfg.Cooldown,
	})
}

// RedisKeyPrefix namespaces every key pushgate writes to Redis.
const RedisKeyPrefix = "pushgate:"

// buildCacheRepo picks the storage behind the endpoint cache.
//
//nolint:ireturn // the backend is chosen at runtime.
func buildCacheRepo(cfg config.CacheConfig, client redis.UniversalClient) core.CacheRepository {
	switch cfg.Backend {
	case config.CacheBackendRedis:
		if client != nil {
			return data.NewRedisCacheRepo(client, data.RedisCacheOptions{KeyPrefix: RedisKeyPrefix})
		}
		return data.NewMemoryCacheRepo(data.MemoryCacheOptions{Capacity: cfg.MemoryCapacity})
	case config.CacheBackendMemory:
		return data.NewMemoryCacheRepo(data.MemoryCacheOptions{Capacity: cfg.MemoryCapacity})
	default:
		return noCache{}
	}
}

// noCache misses on every read so each lookup goes to the store.
type noCache struct{}

func (noCache) Get(context.Context, string) ([]byte, error)              { return nil, nil }
func (noCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (noCache) Delete(context.Context, string) (bool, error)             { return false, nil }
func (noCache) Health(context.Context) error                             { return nil }

// needsQueue reports whether any enabled component produces or consumes queued pushes.
func needsQueue(cfg *config.AppConfig) bool {
	return cfg.IsConsumerEnabled() ||
		(cfg.IsHTTPServerEnabled() && cfg.Push.GroupMode == config.GroupModeQueue)
}

// NewServices wires repositories, the endpoint cache, the provider transport and the
// dispatch services. It dials RabbitMQ when that backend is selected and needed.
func NewServices(ctx context.Context, deps *ServiceDeps) (*ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return nil, errors.New("service deps with config are required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	obs := buildObservability(logger, cfg.Observability)
	c := &ServiceContainer{Observability: obs}

	endpoints := data.NewEndpointRepo(deps.DB)
	c.PushLogs = data.NewPushLogRepo(deps.DB, nil)

	cacheRepo := buildCacheRepo(cfg.Cache, deps.RedisClient)
	cache, err := core.NewEndpointCacheService(core.EndpointCacheServiceOptions{
		Cache:     cacheRepo,
		Endpoints: endpoints,
		Config:    core.EndpointCacheConfig{TTL: cfg.Push.CacheTTL},
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create endpoint cache: %w", err)
	}
	c.Cache = cache

	c.Sender = channels.NewSender(channels.SenderOptions{
		RPS:            cfg.Push.ProviderRPS,
		Burst:          cfg.Push.ProviderBurst,
		TelegramAPIURL: cfg.Push.TelegramAPIURL,
		WeComAPIURL:    cfg.Push.WeComAPIURL,
		Logger:         logger,
	})

	c.Executor, err = service.NewPushExecutor(service.PushExecutorOptions{
		Endpoints: cache,
		Logs:      c.PushLogs,
		Sender:    c.Sender,
		Backoff:   service.BackoffConfig{Base: cfg.Push.BackoffBase, Max: cfg.Push.BackoffMax},
		Metrics:   obs.Recorder,
		Notifier:  obs.FailureNotifier,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	if needsQueue(cfg) {
		if err := c.buildQueue(ctx, cfg, deps.DB, logger); err != nil {
			_ = c.Close()
			return nil, err
		}
	}

	if cfg.IsConsumerEnabled() {
		c.Consumer, err = service.NewPushConsumer(service.PushConsumerOptions{
			Endpoints:  cache,
			Logs:       c.PushLogs,
			Sender:     c.Sender,
			RetryDelay: cfg.Queue.RetryDelay,
			Metrics:    obs.Recorder,
			Notifier:   obs.FailureNotifier,
			Logger:     logger,
		})
		if err != nil {
			_ = c.Close()
			return nil, err
		}
	}

	c.Groups, err = buildGroupDispatcher(groupDispatcherDeps{
		Mode:      cfg.Push.GroupMode,
		Groups:    data.NewGroupRepo(deps.DB),
		Executor:  c.Executor,
		Endpoints: cache,
		Queue:     c.Queue,
		Metrics:   obs.Recorder,
		Logger:    logger,
	})
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	c.Health = buildHealthChecks(deps.DB, cacheRepo, c.Broker)
	return c, nil
}

func (c *ServiceContainer) buildQueue(ctx context.Context, cfg *config.AppConfig, db *sql.DB, logger *slog.Logger) error {
	if cfg.Queue.Backend == config.QueueBackendRabbitMQ {
		broker, err := rabbitmq.Dial(ctx, rabbitmq.DialOptions{Config: cfg.Queue.RabbitMQ, Logger: logger})
		if err != nil {
			return err
		}
		c.Broker = broker
		pub, err := broker.Publisher()
		if err != nil {
			return err
		}
		c.Queue = pub
		return nil
	}

	c.PostgresQueue = data.NewPushQueueRepo(db, data.PushQueueRepoOptions{Logger: logger})
	c.Queue = c.PostgresQueue
	return nil
}

type groupDispatcherDeps struct {
	Mode      config.GroupMode
	Groups    core.GroupRepository
	Executor  service.Executor
	Endpoints service.EndpointResolver
	Queue     core.PushQueue
	Metrics   metrics.Recorder
	Logger    *slog.Logger
}

// buildGroupDispatcher selects synchronous or queued group delivery. Queue mode without
// a queue falls back to synchronous delivery.
//
//nolint:ireturn // the dispatcher is chosen at runtime.
func buildGroupDispatcher(d groupDispatcherDeps) (service.GroupDispatcher, error) {
	if d.Mode == config.GroupModeQueue && d.Queue != nil {
		return service.NewQueueGroupDispatcher(service.QueueGroupDispatcherOptions{
			Groups:  d.Groups,
			Queue:   d.Queue,
			Metrics: d.Metrics,
			Logger:  d.Logger,
		})
	}
	if d.Mode == config.GroupModeQueue && d.Logger != nil {
		d.Logger.Warn("group mode is queue but no queue is configured; using sync delivery")
	}
	return service.NewSyncGroupDispatcher(service.SyncGroupDispatcherOptions{
		Groups:    d.Groups,
		Executor:  d.Executor,
		Endpoints: d.Endpoints,
		Metrics:   d.Metrics,
		Logger:    d.Logger,
	})
}

func buildHealthChecks(db *sql.DB, cache core.CacheRepository, broker *rabbitmq.Broker) []httpx.HealthCheck {
	var checks []httpx.HealthCheck
	if db != nil {
		checks = append(checks, httpx.HealthCheck{Name: "postgres", Check: db.PingContext})
	}
	if cache != nil {
		checks = append(checks, httpx.HealthCheck{Name: "cache", Check: cache.Health})
	}
	if broker != nil {
		checks = append(checks, httpx.HealthCheck{Name: "rabbitmq", Check: broker.Health})
	}
	return checks
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services *ServiceContainer
	DB       *sql.DB
	Logger   *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		Logger:   deps.logger,
		ErrCh:    deps.errCh,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error", "service", descriptor.name, "error", errMsg)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newConsumerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeConsumer,
		name: "push consumer",
		start: func(ctx context.Context) error {
			return RunConsumer(ctx, ConsumerConfig{
				Config:   deps.cfg.Config,
				Services: deps.cfg.Services,
				Logger:   deps.logger,
			})
		},
	}
}

func newReaperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
		start: func(ctx context.Context) error {
			return RunReaper(ctx, ReaperConfig{
				DB:           deps.cfg.DB,
				Logger:       deps.logger,
				Config:       deps.cfg.Config.Reaper,
				QueueBackend: deps.cfg.Config.Queue.Backend,
				Metrics:      metricsSink(deps.cfg.Services),
			})
		},
	}
}

//nolint:ireturn // a nil *statsd.Client must not become a non-nil interface.
func metricsSink(c *ServiceContainer) statsd.Sink {
	if c == nil || c.Observability.MetricsSink == nil {
		return nil
	}
	return c.Observability.MetricsSink
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	return []backgroundService{
		newConsumerBackgroundService(deps),
		newReaperBackgroundService(deps),
	}
}

// ServiceStartupResult contains the results of starting services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

func startServices(deps *serviceStartupDeps) ServiceStartupResult {
	return ServiceStartupResult{
		HTTPServer: startHTTPServerIfEnabled(deps),
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}
}

// RunServicesWithShutdown starts every enabled service and blocks until a signal
// arrives or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	if cfg.Services == nil {
		return errors.New("service orchestration config missing services")
	}

	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Determine which services are enabled
	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	// Start all enabled services
	result := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	// Wait for shutdown signal or error
	return waitForShutdown(shutdownConfig{
		ctx:             serviceCtx,
		cancel:          cancel,
		errCh:           errCh,
		httpServer:      result.HTTPServer,
		httpDrainWindow: cfg.Config.HTTP.ShutdownTimeout,
		logger:          logger,
		backgrounds:     result.Background,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	return errorChannelCapacity(enabled) + 1
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx             context.Context
	cancel          context.CancelFunc
	errCh           <-chan error
	httpServer      *http.Server
	httpDrainWindow time.Duration
	logger          *slog.Logger
	backgrounds     []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel() // Cancel service context before waiting
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel() // Cancel service context before waiting
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop stops the HTTP server and waits for background services.
func gracefulStop(cfg shutdownConfig) error {
	if cfg.httpServer != nil {
		// The service context is already cancelled, so the shutdown deadline hangs off Background.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWaitTimeout)
		defer cancel()

		if err := ShutdownHTTPServer(ShutdownConfig{
			Context: shutdownCtx,
			Server:  cfg.httpServer,
			Timeout: cfg.httpDrainWindow,
			Logger:  cfg.logger,
		}); err != nil {
			return err
		}
	}

	// Wait for background services to finish
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	return nil
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
