package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"net"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/target/pushgate/internal/migrate"
)

// TestingTB is the subset of testing.TB the helpers need.
type TestingTB interface {
	Helper()
	Cleanup(func())
	Skip(args ...any)
	Skipf(format string, args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	Logf(format string, args ...any)
}

// DBConfig locates the integration test database. Defaults match the
// docker-compose test profile, which publishes Postgres on 55432.
type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DBConfigFromEnv reads TEST_DB_* overrides.
func DBConfigFromEnv() DBConfig {
	return DBConfig{
		Host:     envOr("TEST_DB_HOST", "localhost"),
		Port:     envOr("TEST_DB_PORT", "55432"),
		User:     envOr("TEST_DB_USER", "pushgate"),
		Password: envOr("TEST_DB_PASSWORD", "pushgate"),
		Name:     envOr("TEST_DB_NAME", "pushgate"),
		SSLMode:  envOr("DB_SSL_MODE", "disable"),
	}
}

// DSN renders the config as a postgres URL, optionally scoped to schema.
func (c DBConfig) DSN(schema string) string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, c.Port),
		Path:   "/" + c.Name,
	}
	q := url.Values{"sslmode": {c.SSLMode}}
	if schema != "" {
		q.Set("search_path", schema+",public")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Tables in delete order; link tables precede what they reference.
var fixtureTables = []string{
	"endpoint_to_group",
	"endpoint_groups",
	"push_queue",
	"push_logs",
	"endpoints",
	"channels",
}

var (
	probeOnce sync.Once
	probeErr  error
)

// SkipIfNoTestDB skips t when the test database cannot be reached, or fails it when
// TEST_REQUIRE_DB or TEST_REQUIRE_INFRA is set. The probe runs once per process.
func SkipIfNoTestDB(t TestingTB) {
	t.Helper()

	probeOnce.Do(func() {
		db, err := sql.Open("pgx", DBConfigFromEnv().DSN(""))
		if err != nil {
			probeErr = err
			return
		}
		defer func() { _ = db.Close() }()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		probeErr = db.PingContext(ctx)
	})

	if probeErr == nil {
		return
	}
	if envBool("TEST_REQUIRE_DB") || envBool("TEST_REQUIRE_INFRA") {
		t.Fatal("test database not available:", probeErr)
	}
	t.Skip("test database not available:", probeErr)
}

// WithAutoDB runs fn against a migrated database. With TEST_DB_EPHEMERAL set each
// test gets its own schema, dropped afterwards; otherwise the shared database is
// truncated before and after fn.
func WithAutoDB(t TestingTB, fn func(*sql.DB)) {
	t.Helper()
	SkipIfNoTestDB(t)

	if envBool("TEST_DB_EPHEMERAL") {
		fn(openEphemeral(t))
		return
	}

	db := openMigrated(t, DBConfigFromEnv().DSN(""))
	truncate(t, db)
	t.Cleanup(func() { truncate(t, db) })
	fn(db)
}

func openEphemeral(t TestingTB) *sql.DB {
	t.Helper()
	cfg := DBConfigFromEnv()

	admin := open(t, cfg.DSN(""))
	schema := schemaName()
	exec(t, admin, "CREATE SCHEMA "+schema)
	t.Cleanup(func() {
		exec(t, admin, "DROP SCHEMA IF EXISTS "+schema+" CASCADE")
	})
	t.Logf("using ephemeral schema %s", schema)

	return openMigrated(t, cfg.DSN(schema))
}

// openMigrated opens dsn, applies migrations and closes the pool on cleanup.
func openMigrated(t TestingTB, dsn string) *sql.DB {
	t.Helper()
	db := open(t, dsn)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := migrate.Run(ctx, db); err != nil {
		t.Fatal("run migrations:", err)
	}
	return db
}

// open returns a pinged pool that is closed when t finishes. Cleanups run LIFO,
// so a pool opened first is closed last.
func open(t TestingTB, dsn string) *sql.DB {
	t.Helper()
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatal("open test database:", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("close test database: %v", err)
		}
	})
	db.SetMaxOpenConns(10)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		t.Fatal("ping test database:", err)
	}
	return db
}

func truncate(t TestingTB, db *sql.DB) {
	t.Helper()
	for _, table := range fixtureTables {
		exec(t, db, "DELETE FROM "+table)
	}
}

func exec(t TestingTB, db *sql.DB, stmt string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		t.Fatalf("exec %q: %v", stmt, err)
	}
}

func schemaName() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "t_" + strings.ReplaceAll(time.Now().Format("150405.000000000"), ".", "")
	}
	return "t_" + hex.EncodeToString(b)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "y":
		return true
	default:
		return false
	}
}

// TestTime is the fixed clock used by fixtures.
func TestTime() time.Time {
	return time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
}

// StringPtr returns &s.
func StringPtr(s string) *string { return &s }
