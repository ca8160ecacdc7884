package config

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Postgres, Redis and cache backend configuration
//   - http.go: HTTP server configuration
//   - push.go: dispatch engine tuning (backoff, cache TTL, group mode, queue)
//   - services.go: service mode, consumer and reaper configuration
//   - observability.go: metrics and failure notifications
//   - logging.go: log level and format
type AppConfig struct {
	Log LogConfig

	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`
	Cache    CacheConfig

	HTTP HTTPConfig

	// Services is a comma-delimited list of enabled services (http, consumer, reaper).
	Services string `env:"SERVICES" envDefault:"http"`

	Push     PushConfig
	Queue    QueueConfig
	Consumer ConsumerConfig
	Reaper   ReaperConfig

	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Log.Sanitize()
	c.Postgres.Sanitize()
	c.HTTP.Sanitize()
	c.Cache.Sanitize()
	c.Push.Sanitize()
	c.Queue.Sanitize()
	c.Consumer.Sanitize()
	c.Reaper.Sanitize()
	c.Observability.Sanitize()
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	return c.serviceEnabled(ServiceModeHTTP)
}

// IsConsumerEnabled returns true if the push queue consumer is enabled.
func (c *AppConfig) IsConsumerEnabled() bool {
	return c.serviceEnabled(ServiceModeConsumer)
}

// IsReaperEnabled returns true if the reaper service is enabled.
func (c *AppConfig) IsReaperEnabled() bool {
	return c.serviceEnabled(ServiceModeReaper)
}

func (c *AppConfig) serviceEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}
