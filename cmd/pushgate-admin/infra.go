package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/pushgate/config"
	"github.com/target/pushgate/internal/bootstrap"
	"github.com/target/pushgate/internal/core"
	"github.com/target/pushgate/internal/data"
	"github.com/target/pushgate/internal/domain/model"
)

var errRedisNotConfigured = errors.New("redis not configured")

// maybeConnectRedis returns a connected client when configuration is present.
//
//nolint:ireturn // returning redis.UniversalClient keeps sentinel/cluster support flexible.
func maybeConnectRedis(logger *slog.Logger, cfg *config.RedisConfig) (redis.UniversalClient, error) {
	if !hasRedisConfig(cfg) {
		return nil, errRedisNotConfigured
	}
	client, err := bootstrap.ConnectRedis(bootstrap.DatabaseConfig{RedisConfig: *cfg, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

func hasRedisConfig(cfg *config.RedisConfig) bool {
	if cfg == nil {
		return false
	}
	if cfg.UseCluster {
		return len(cfg.ClusterNodes) > 0 || cfg.URI != ""
	}
	if cfg.UseSentinel {
		return len(cfg.SentinelNodes) > 0
	}
	return cfg.URI != ""
}

// withEndpointCache runs f against the shared Redis endpoint cache. In-process caches
// belong to the running servers and are invalidated through their HTTP hooks instead.
func withEndpointCache(cmdCtx *commandContext, f func(context.Context, *core.EndpointCacheService) error) error {
	if cmdCtx.Config.Cache.Backend != config.CacheBackendRedis {
		return fmt.Errorf(
			"cache backend %q is per-process; use POST /cache/... on each server instead",
			cmdCtx.Config.Cache.Backend,
		)
	}

	client, err := maybeConnectRedis(cmdCtx.Logger, &cmdCtx.Config.Redis)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", closeErr)
		}
	}()

	return withDatabase(cmdCtx, defaultCommandTimeout, func(ctx context.Context, db *sql.DB) error {
		cache, cacheErr := core.NewEndpointCacheService(core.EndpointCacheServiceOptions{
			Cache:     data.NewRedisCacheRepo(client, data.RedisCacheOptions{KeyPrefix: bootstrap.RedisKeyPrefix}),
			Endpoints: data.NewEndpointRepo(db),
			Logger:    cmdCtx.Logger,
		})
		if cacheErr != nil {
			return cacheErr
		}
		return f(ctx, cache)
	})
}

type cacheKeyEntry struct {
	Key string
	TTL time.Duration
}

func renderCacheKeys(w io.Writer, entries []cacheKeyEntry) error {
	if len(entries) == 0 {
		return writeln(w, "(no keys found)")
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "KEY\tTTL"); err != nil {
		return fmt.Errorf("write cache key header row: %w", err)
	}
	for _, entry := range entries {
		if err := writef(tw, "%s\t%s\n", entry.Key, renderTTL(entry.TTL)); err != nil {
			return fmt.Errorf("write cache key entry: %w", err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush cache key table: %w", err)
	}
	return writef(w, "\nTotal keys: %d\n", len(entries))
}

func renderPushLogs(w io.Writer, logs []*model.PushLog) error {
	if len(logs) == 0 {
		return writeln(w, "(no push logs)")
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "CREATED\tSTATUS\tREQUEST\tRESPONSE"); err != nil {
		return fmt.Errorf("write push log header row: %w", err)
	}
	for _, l := range logs {
		if l == nil {
			continue
		}
		response := "-"
		if l.ResponseBody != nil && *l.ResponseBody != "" {
			response = truncate(*l.ResponseBody, 80)
		}
		if err := writef(
			tw,
			"%s\t%s\t%s\t%s\n",
			l.CreatedAt.UTC().Format(time.RFC3339),
			l.Status,
			l.RequestID,
			response,
		); err != nil {
			return fmt.Errorf("write push log entry: %w", err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush push log table: %w", err)
	}
	return nil
}

func renderTTL(d time.Duration) string {
	switch d {
	case -1 * time.Second, -1:
		return "no expiry"
	case -2 * time.Second, -2:
		return "key missing"
	default:
		return d.String()
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func write(w io.Writer, args ...any) error {
	_, err := fmt.Fprint(w, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	if len(args) == 0 {
		_, err := fmt.Fprintln(w)
		return err
	}
	_, err := fmt.Fprintln(w, args...)
	return err
}
