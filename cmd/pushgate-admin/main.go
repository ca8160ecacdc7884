package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/target/pushgate/config"
	"github.com/target/pushgate/internal/bootstrap"
	"github.com/target/pushgate/internal/core"
	"github.com/target/pushgate/internal/data"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
}

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultCommandTimeout   = 2 * time.Minute
)

func main() {
	logger := bootstrap.NewLogger(os.Stderr, config.LogConfig{Level: "info", Format: config.LogFormatText})

	if len(os.Args) < 2 {
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(os.Stderr); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	// Operators read admin output in a terminal; only the level is taken from config.
	logger = bootstrap.NewLogger(os.Stderr, config.LogConfig{Level: cfg.Log.Level, Format: config.LogFormatText})

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Config: cfg,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			run:         runMigrations,
		},
		"db-reset": {
			name:        "db-reset",
			description: "Drop the database schema and run migrations",
			run:         runDBReset,
		},
		"invalidate-endpoint": {
			name:        "invalidate-endpoint",
			description: "Drop the cached snapshot of one endpoint",
			run:         runInvalidateEndpoint,
		},
		"invalidate-channel": {
			name:        "invalidate-channel",
			description: "Drop the cached snapshot of every endpoint bound to a channel",
			run:         runInvalidateChannel,
		},
		"list-cache-keys": {
			name:        "list-cache-keys",
			description: "Inspect endpoint snapshot keys in Redis",
			run:         runListCacheKeys,
		},
		"push-logs": {
			name:        "push-logs",
			description: "Show recent push outcomes of an endpoint",
			run:         runPushLogs,
		},
		"requeue-expired": {
			name:        "requeue-expired",
			description: "Return queued pushes with expired leases to the queue",
			run:         runRequeueExpired,
		},
		"prune-logs": {
			name:        "prune-logs",
			description: "Delete push logs older than a maximum age",
			run:         runPruneLogs,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: pushgate-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}
	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writef(w, "  %-24s %s\n", name, cmds[name].description); err != nil {
			return err
		}
	}
	return nil
}

type migrateOptions struct {
	Timeout time.Duration
}

type dbResetOptions struct {
	Timeout     time.Duration
	Yes         bool
	AllowRemote bool
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		cmdCtx.Logger.Info("running database migrations")
		if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
			return fmt.Errorf("run migrations: %w", migrateErr)
		}
		cmdCtx.Logger.Info("migrations completed successfully")
		return nil
	})
}

func runDBReset(cmdCtx *commandContext, args []string) error {
	opts, err := parseDBResetFlags(args)
	if err != nil {
		return err
	}

	target := fmt.Sprintf(
		"database %q on %s:%d",
		cmdCtx.Config.Postgres.Name,
		cmdCtx.Config.Postgres.Host,
		cmdCtx.Config.Postgres.Port,
	)

	remote, err := guardRemoteHost(cmdCtx, opts.AllowRemote, "drop and recreate the public schema")
	if err != nil {
		return err
	}
	// A remote target always asks, even with --yes.
	if !opts.Yes || remote {
		if confirmErr := confirm(os.Stdin, os.Stdout, "About to reset the schema of "+target+"."); confirmErr != nil {
			return confirmErr
		}
	}

	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		cmdCtx.Logger.Info("dropping public schema", "database", cmdCtx.Config.Postgres.Name)
		if resetErr := cmdCtx.resetDatabase(ctx, db); resetErr != nil {
			return resetErr
		}

		cmdCtx.Logger.Info("re-running database migrations")
		if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
			return fmt.Errorf("run migrations: %w", migrateErr)
		}

		cmdCtx.Logger.Info("database reset completed successfully")
		return nil
	})
}

func runInvalidateEndpoint(cmdCtx *commandContext, args []string) error {
	id, err := parseIDFlag("invalidate-endpoint", "id", "Endpoint id", args)
	if err != nil {
		return err
	}
	return withEndpointCache(cmdCtx, func(ctx context.Context, cache *core.EndpointCacheService) error {
		if invErr := cache.Invalidate(ctx, id); invErr != nil {
			return invErr
		}
		return writef(os.Stdout, "invalidated endpoint %s\n", id)
	})
}

func runInvalidateChannel(cmdCtx *commandContext, args []string) error {
	id, err := parseIDFlag("invalidate-channel", "id", "Channel id", args)
	if err != nil {
		return err
	}
	return withEndpointCache(cmdCtx, func(ctx context.Context, cache *core.EndpointCacheService) error {
		n, invErr := cache.InvalidateByChannel(ctx, id)
		if invErr != nil {
			return invErr
		}
		return writef(os.Stdout, "invalidated %d endpoint(s) bound to channel %s\n", n, id)
	})
}

func runListCacheKeys(cmdCtx *commandContext, _ []string) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	client, err := maybeConnectRedis(cmdCtx.Logger, &cmdCtx.Config.Redis)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", closeErr)
		}
	}()

	pattern := bootstrap.RedisKeyPrefix + core.EndpointKeyPrefix + "*"
	cmdCtx.Logger.Info("scanning redis", "pattern", pattern)

	var entries []cacheKeyEntry
	iter := client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		ttl, ttlErr := client.TTL(ctx, key).Result()
		if ttlErr != nil {
			cmdCtx.Logger.ErrorContext(ctx, "failed to fetch TTL", "key", key, "error", ttlErr)
		}
		entries = append(entries, cacheKeyEntry{Key: key, TTL: ttl})
	}
	if iterErr := iter.Err(); iterErr != nil {
		return fmt.Errorf("redis scan: %w", iterErr)
	}

	return renderCacheKeys(os.Stdout, entries)
}

type pushLogsOptions struct {
	EndpointID string
	Limit      int
}

func runPushLogs(cmdCtx *commandContext, args []string) error {
	opts, err := parsePushLogsFlags(args)
	if err != nil {
		return err
	}
	return withDatabase(cmdCtx, defaultCommandTimeout, func(ctx context.Context, db *sql.DB) error {
		logs, listErr := data.NewPushLogRepo(db, nil).ListByEndpoint(ctx, opts.EndpointID, opts.Limit)
		if listErr != nil {
			return listErr
		}
		return renderPushLogs(os.Stdout, logs)
	})
}

func runRequeueExpired(cmdCtx *commandContext, _ []string) error {
	if cmdCtx.Config.Queue.Backend != config.QueueBackendPostgres {
		return fmt.Errorf("requeue-expired only applies to the %s queue backend", config.QueueBackendPostgres)
	}
	return withDatabase(cmdCtx, defaultCommandTimeout, func(ctx context.Context, db *sql.DB) error {
		repo := data.NewPushQueueRepo(db, data.PushQueueRepoOptions{Logger: cmdCtx.Logger})
		n, err := repo.RequeueExpired(ctx)
		if err != nil {
			return fmt.Errorf("requeue expired leases: %w", err)
		}
		return writef(os.Stdout, "requeued %d message(s)\n", n)
	})
}

type pruneLogsOptions struct {
	MaxAge    time.Duration
	BatchSize int
	Timeout   time.Duration
}

func runPruneLogs(cmdCtx *commandContext, args []string) error {
	opts, err := parsePruneLogsFlags(args, cmdCtx.Config.Reaper)
	if err != nil {
		return err
	}
	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		cutoff := time.Now().Add(-opts.MaxAge)
		n, pruneErr := data.NewPushLogRepo(db, nil).DeleteLogsOlderThan(ctx, cutoff, opts.BatchSize)
		if pruneErr != nil {
			return fmt.Errorf("prune push logs: %w", pruneErr)
		}
		return writef(os.Stdout, "deleted %d push log(s) older than %s\n", n, cutoff.Format(time.RFC3339))
	})
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := migrateOptions{}
	fs.DurationVar(
		&opts.Timeout,
		"timeout",
		defaultMigrationTimeout,
		"Maximum duration to wait for migrations to complete",
	)

	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}

	if opts.Timeout <= 0 {
		return migrateOptions{}, errors.New("--timeout must be greater than zero")
	}

	return opts, nil
}

func parseDBResetFlags(args []string) (dbResetOptions, error) {
	fs := flag.NewFlagSet("db-reset", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := dbResetOptions{}
	fs.DurationVar(
		&opts.Timeout,
		"timeout",
		defaultMigrationTimeout,
		"Maximum duration to wait for reset operations to complete",
	)
	fs.BoolVar(&opts.Yes, "yes", false, "Skip confirmation prompt")
	fs.BoolVar(
		&opts.AllowRemote,
		"allow-remote",
		false,
		"Permit running against database hosts that do not look local",
	)

	if err := fs.Parse(args); err != nil {
		return dbResetOptions{}, err
	}

	if opts.Timeout <= 0 {
		return dbResetOptions{}, errors.New("--timeout must be greater than zero")
	}

	return opts, nil
}

func parseIDFlag(cmdName, flagName, usage string, args []string) (string, error) {
	fs := flag.NewFlagSet(cmdName, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var id string
	fs.StringVar(&id, flagName, "", usage)
	if err := fs.Parse(args); err != nil {
		return "", err
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("--%s is required", flagName)
	}
	return id, nil
}

func parsePushLogsFlags(args []string) (pushLogsOptions, error) {
	fs := flag.NewFlagSet("push-logs", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := pushLogsOptions{}
	fs.StringVar(&opts.EndpointID, "endpoint", "", "Endpoint id")
	fs.IntVar(&opts.Limit, "limit", 20, "Maximum number of logs to show")

	if err := fs.Parse(args); err != nil {
		return pushLogsOptions{}, err
	}

	opts.EndpointID = strings.TrimSpace(opts.EndpointID)
	if opts.EndpointID == "" {
		return pushLogsOptions{}, errors.New("--endpoint is required")
	}
	if opts.Limit <= 0 {
		return pushLogsOptions{}, errors.New("--limit must be greater than zero")
	}
	return opts, nil
}

func parsePruneLogsFlags(args []string, defaults config.ReaperConfig) (pruneLogsOptions, error) {
	fs := flag.NewFlagSet("prune-logs", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := pruneLogsOptions{}
	fs.DurationVar(&opts.MaxAge, "max-age", defaults.LogMaxAge, "Delete logs older than this age")
	fs.IntVar(&opts.BatchSize, "batch-size", defaults.BatchSize, "Rows deleted per statement")
	fs.DurationVar(&opts.Timeout, "timeout", defaultMigrationTimeout, "Maximum duration to wait for pruning")

	if err := fs.Parse(args); err != nil {
		return pruneLogsOptions{}, err
	}

	if opts.MaxAge <= 0 {
		return pruneLogsOptions{}, errors.New("--max-age must be greater than zero")
	}
	if opts.BatchSize <= 0 {
		return pruneLogsOptions{}, errors.New("--batch-size must be greater than zero")
	}
	if opts.Timeout <= 0 {
		return pruneLogsOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func withDatabase(
	cmdCtx *commandContext,
	timeout time.Duration,
	f func(context.Context, *sql.DB) error,
) error {
	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", cerr)
		}
	}()

	return f(ctx, db)
}

func guardRemoteHost(cmdCtx *commandContext, allow bool, action string) (bool, error) {
	remote := isLikelyRemoteHost(cmdCtx.Config.Postgres.Host)
	if !remote {
		return false, nil
	}
	if !allow {
		return true, fmt.Errorf(
			"refusing to %s on potentially remote database host %q; re-run with --allow-remote if this is intentional",
			action,
			cmdCtx.Config.Postgres.Host,
		)
	}
	return true, nil
}

func (cmdCtx *commandContext) resetDatabase(ctx context.Context, db *sql.DB) error {
	if cmdCtx == nil {
		return errors.New("command context is required")
	}

	cfg := &cmdCtx.Config.Postgres
	statements := []string{
		"DROP SCHEMA public CASCADE",
		"CREATE SCHEMA public",
		"GRANT ALL ON SCHEMA public TO public",
	}
	if user := strings.TrimSpace(cfg.User); user != "" && !strings.EqualFold(user, "public") {
		statements = append(statements, "GRANT ALL ON SCHEMA public TO "+quoteIdentifier(user))
	}

	for _, stmt := range statements {
		if cmdCtx.Logger != nil {
			cmdCtx.Logger.DebugContext(ctx, "executing reset statement", "sql", stmt)
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}

func quoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func isLikelyRemoteHost(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	if h == "" {
		return false
	}
	if h == "localhost" || h == "127.0.0.1" || h == "::1" {
		return false
	}
	if strings.HasSuffix(h, ".local") {
		return false
	}
	if ip := net.ParseIP(h); ip != nil {
		return !ip.IsLoopback()
	}
	return true
}

func confirm(in io.Reader, out io.Writer, intro string) error {
	if err := writeln(out, intro); err != nil {
		return fmt.Errorf("print confirmation message: %w", err)
	}
	if err := write(out, "Continue? [y/N]: "); err != nil {
		return fmt.Errorf("print confirmation prompt: %w", err)
	}
	resp, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && resp == "" {
		return errors.New("aborted by user")
	}
	resp = strings.ToLower(strings.TrimSpace(resp))
	if resp == "y" || resp == "yes" {
		return nil
	}
	return errors.New("aborted by user")
}
