package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/target/pushgate/config"
	httpx "github.com/target/pushgate/internal/http"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services *ServiceContainer
	Logger   *slog.Logger
	// ErrCh receives a listener failure. Optional.
	ErrCh chan<- error
}

// StartHTTPServer creates and starts the HTTP server.
// Returns the server instance for graceful shutdown.
func StartHTTPServer(cfg *HTTPServerConfig) *http.Server {
	if cfg == nil || cfg.Services == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	handler := buildHTTPHandler(httpHandlerConfig{
		Logger:   logger,
		Services: routerServices(cfg.Services, appCfg.HTTP, logger),
		HTTP:     appCfg.HTTP,
	})

	return startServer(serverParams{
		Logger:  logger,
		Handler: handler,
		HTTP:    appCfg.HTTP,
		ErrCh:   cfg.ErrCh,
	})
}

func routerServices(c *ServiceContainer, httpCfg config.HTTPConfig, logger *slog.Logger) httpx.RouterServices {
	services := httpx.RouterServices{
		Executor:     c.Executor,
		Groups:       c.Groups,
		Cache:        c.Cache,
		Health:       c.Health,
		Metrics:      c.Observability.MetricsHandler,
		MaxBodyBytes: httpCfg.MaxBodyBytes,
		Logger:       logger,
	}
	// Typed nil pointers must not leak into the optional interfaces.
	if c.PushLogs != nil {
		services.PushLogs = c.PushLogs
	}
	if c.Sender != nil {
		services.Catalog = c.Sender
	}
	return services
}

type httpHandlerConfig struct {
	Logger   *slog.Logger
	Services httpx.RouterServices
	HTTP     config.HTTPConfig
}

func buildHTTPHandler(cfg httpHandlerConfig) http.Handler {
	// Compression is innermost so the access log records compressed sizes.
	mws := []httpx.Middleware{httpx.Recover(cfg.Logger), httpx.Logging(cfg.Logger)}
	if cfg.HTTP.CompressionEnabled {
		cfg.Logger.Info("HTTP compression enabled", "level", cfg.HTTP.CompressionLevel)
		mws = append(mws, httpx.Compression(httpx.CompressionConfig{Level: cfg.HTTP.CompressionLevel, Logger: cfg.Logger}))
	}
	return httpx.Chain(httpx.NewRouter(cfg.Services), mws...)
}

type serverParams struct {
	Logger  *slog.Logger
	Handler http.Handler
	HTTP    config.HTTPConfig
	ErrCh   chan<- error
}

func newServer(handler http.Handler, httpCfg config.HTTPConfig) *http.Server {
	// An unsanitized zero config would otherwise listen on :http with no timeouts.
	httpCfg.Sanitize()
	addr := httpCfg.Addr
	if addr == "" {
		addr = ":8080"
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: httpCfg.ReadHeaderTimeout,
		ReadTimeout:       httpCfg.ReadTimeout,
		WriteTimeout:      httpCfg.WriteTimeout,
		IdleTimeout:       httpCfg.IdleTimeout,
	}
}

func startServer(p serverParams) *http.Server {
	server := newServer(p.Handler, p.HTTP)

	go func() {
		p.Logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.Logger.Error("HTTP server failed", "error", err)
			if p.ErrCh != nil {
				select {
				case p.ErrCh <- fmt.Errorf("http server: %w", err):
				default:
				}
			}
		}
	}()

	return server
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context context.Context
	Server  *http.Server
	// Timeout defaults to 10s.
	Timeout time.Duration
	Logger  *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server, letting in-flight pushes finish.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}

	parent := cfg.Context
	if parent == nil {
		parent = context.Background()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}

	return nil
}
