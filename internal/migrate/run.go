// Package migrate applies the embedded pushgate schema migrations.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strings"

	"github.com/target/pushgate/internal/data/pgxutil"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationLockKey serializes migrators across processes; an http and a consumer
// process started together would otherwise race on the same version.
const migrationLockKey = 7_301_001

// Run applies every embedded migration not yet recorded in schema_migrations.
// It is safe to call multiple times and from several processes at once.
func Run(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	versions, err := Versions()
	if err != nil {
		return err
	}

	logger := slog.Default().With("component", "migrations")
	for _, version := range versions {
		if applyErr := apply(ctx, db, version, logger); applyErr != nil {
			return applyErr
		}
	}
	return nil
}

// Versions lists the embedded migration versions in apply order.
func Versions() ([]string, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var versions []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			versions = append(versions, strings.TrimSuffix(e.Name(), ".sql"))
		}
	}
	slices.Sort(versions)
	return versions, nil
}

func apply(ctx context.Context, db *sql.DB, version string, logger *slog.Logger) error {
	body, err := migrationsFS.ReadFile(path.Join("migrations", version+".sql"))
	if err != nil {
		return fmt.Errorf("read migration %s: %w", version, err)
	}

	return pgxutil.WithSQLTx(ctx, db, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			if _, lockErr := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockKey); lockErr != nil {
				return fmt.Errorf("lock migrations: %w", lockErr)
			}

			var exists bool
			if scanErr := tx.QueryRowContext(ctx,
				`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, version,
			).Scan(&exists); scanErr != nil {
				return fmt.Errorf("check migration %s: %w", version, scanErr)
			}
			if exists {
				return nil
			}

			logger.InfoContext(ctx, "applying migration", "version", version)
			if _, execErr := tx.ExecContext(ctx, string(body)); execErr != nil {
				return fmt.Errorf("exec migration %s: %w", version, execErr)
			}
			if _, insErr := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); insErr != nil {
				return fmt.Errorf("record migration %s: %w", version, insErr)
			}
			return nil
		},
	})
}
