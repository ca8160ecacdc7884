package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeConsumer runs the push queue consumer.
	ServiceModeConsumer ServiceMode = "consumer"
	// ServiceModeReaper runs queue lease recovery and push log retention.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeConsumer,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeConsumer, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, consumer, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// ConsumerConfig contains push queue consumer configuration.
type ConsumerConfig struct {
	// Concurrency is the number of worker goroutines reserving queue messages.
	Concurrency int `env:"PUSH_CONSUMER_CONCURRENCY" envDefault:"4"`

	// Lease is how long a reserved message stays invisible to other workers.
	Lease time.Duration `env:"PUSH_CONSUMER_LEASE" envDefault:"5m"`

	// PollInterval bounds how long an idle worker waits for a notification before polling again.
	PollInterval time.Duration `env:"PUSH_CONSUMER_POLL_INTERVAL" envDefault:"5s"`
}

// Sanitize applies guardrails to consumer configuration values.
func (c *ConsumerConfig) Sanitize() {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.Concurrency > 256 {
		c.Concurrency = 256
	}
	// A lease shorter than the slowest provider call (120s) would allow double delivery.
	if c.Lease < 2*time.Minute+10*time.Second {
		c.Lease = 2*time.Minute + 10*time.Second
	}
	if c.PollInterval < 100*time.Millisecond {
		c.PollInterval = 100 * time.Millisecond
	}
}

// ReaperConfig contains configuration for queue lease recovery and log retention.
type ReaperConfig struct {
	// Interval is how often expired queue leases are returned to pending.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"1m"`

	// RetentionSchedule is a cron spec for push log retention.
	RetentionSchedule string `env:"REAPER_RETENTION_SCHEDULE" envDefault:"@hourly"`

	// LogMaxAge is the maximum age of push_logs rows. Zero keeps logs forever.
	LogMaxAge time.Duration `env:"REAPER_LOG_MAX_AGE" envDefault:"720h"` // 30 days

	// BatchSize is the maximum number of rows deleted per statement.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	if r.Interval < 10*time.Second {
		r.Interval = 10 * time.Second
	}
	r.RetentionSchedule = strings.TrimSpace(r.RetentionSchedule)
	if _, err := cron.ParseStandard(r.RetentionSchedule); err != nil {
		r.RetentionSchedule = "@hourly"
	}
	if r.LogMaxAge < 0 {
		r.LogMaxAge = 0
	}
	if r.LogMaxAge > 0 && r.LogMaxAge < time.Hour {
		r.LogMaxAge = time.Hour
	}
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
