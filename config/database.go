package config

import (
	"strings"
)

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"pushgate"`
	Password string `env:"PASSWORD"                envDefault:"pushgate"`
	Name     string `env:"NAME"                    envDefault:"pushgate"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
	// MaxOpenConns bounds the connection pool.
	MaxOpenConns int `env:"MAX_OPEN_CONNS" envDefault:"25"`
}

// Sanitize bounds the connection pool size.
func (d *DBConfig) Sanitize() {
	if d.MaxOpenConns < 2 {
		d.MaxOpenConns = 2
	}
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

// CacheBackend selects the storage behind the endpoint cache.
type CacheBackend string

const (
	// CacheBackendRedis stores endpoint snapshots in Redis, shared by every process.
	CacheBackendRedis CacheBackend = "redis"
	// CacheBackendMemory keeps a per-process LRU.
	CacheBackendMemory CacheBackend = "memory"
	// CacheBackendNone disables caching; every lookup reads the store.
	CacheBackendNone CacheBackend = "none"
)

// CacheConfig contains endpoint cache configuration.
type CacheConfig struct {
	Backend CacheBackend `env:"CACHE_BACKEND" envDefault:"redis"`

	// MemoryCapacity bounds the in-process LRU when Backend is memory.
	MemoryCapacity int `env:"CACHE_MEMORY_CAPACITY" envDefault:"10000"`
}

// Sanitize normalises the backend name and clamps the LRU capacity.
func (c *CacheConfig) Sanitize() {
	switch CacheBackend(strings.ToLower(strings.TrimSpace(string(c.Backend)))) {
	case CacheBackendMemory:
		c.Backend = CacheBackendMemory
	case CacheBackendNone:
		c.Backend = CacheBackendNone
	default:
		c.Backend = CacheBackendRedis
	}
	if c.MemoryCapacity < 1 {
		c.MemoryCapacity = 1
	}
}
