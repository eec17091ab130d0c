// Package datasync loads the accident and region datasets into Postgres and
// records every run in a sync log.
package datasync

import (
	"context"
	"embed"
	"io/fs"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/yys/safewalk-cli/internal/db"
)

// Schema holds every table the importers write.
const Schema = "safewalk"

const migrationLockID = 5_1717_2025

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies pending migrations in file-name order, each in its own
// transaction, under a session advisory lock.
func Migrate(ctx context.Context, pool db.Pool) error {
	log := zap.L().With(zap.String("component", "datasync.migrate"))

	if _, err := pool.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return eris.Wrap(err, "datasync: acquire migration lock")
	}
	defer func() {
		if _, err := pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			log.Warn("datasync: release migration lock", zap.Error(err))
		}
	}()

	if _, err := pool.Exec(ctx, `
		CREATE SCHEMA IF NOT EXISTS safewalk;
		CREATE TABLE IF NOT EXISTS safewalk.schema_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`); err != nil {
		return eris.Wrap(err, "datasync: ensure migration table")
	}

	names, err := MigrationNames()
	if err != nil {
		return err
	}

	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		return err
	}

	for _, name := range names {
		if applied[name] {
			continue
		}
		if err := applyMigration(ctx, pool, name); err != nil {
			return err
		}
		log.Info("migration applied", zap.String("file", name))
	}
	return nil
}

// MigrationNames lists the embedded migration files in apply order.
func MigrationNames() ([]string, error) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, eris.Wrap(err, "datasync: read migration dir")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	slices.Sort(names)
	return names, nil
}

func applyMigration(ctx context.Context, pool db.Pool, name string) error {
	body, err := migrationFS.ReadFile("migrations/" + name)
	if err != nil {
		return eris.Wrapf(err, "datasync: read migration %s", name)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return eris.Wrapf(err, "datasync: begin migration %s", name)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, string(body)); err != nil {
		return eris.Wrapf(err, "datasync: apply migration %s", name)
	}
	if _, err := tx.Exec(ctx, "INSERT INTO safewalk.schema_migrations (filename) VALUES ($1)", name); err != nil {
		return eris.Wrapf(err, "datasync: record migration %s", name)
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrapf(err, "datasync: commit migration %s", name)
	}
	return nil
}

func appliedMigrations(ctx context.Context, pool db.Pool) (map[string]bool, error) {
	rows, err := pool.Query(ctx, "SELECT filename FROM safewalk.schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "datasync: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "datasync: scan migration row")
		}
		applied[name] = true
	}
	return applied, rows.Err()
}
