package database

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"sort"
	"time"

	"github.com/pkg/errors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// runMigrations applies, in file name order, every embedded migration not yet recorded in
// schema_migrations. Each file runs in its own transaction together with its record.
func runMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name       TEXT PRIMARY KEY,
			applied_at INTEGER NOT NULL
		)`); err != nil {
		return errors.Wrap(err, "error creating schema_migrations")
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return errors.Wrap(err, "error reading embedded migrations")
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		var applied int
		err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE name = ?`, e.Name()).Scan(&applied)
		if err != nil {
			return errors.Wrapf(err, "error checking migration: %s", e.Name())
		}
		if applied > 0 {
			continue
		}

		sqlBytes, err := fs.ReadFile(migrationsFS, "migrations/"+e.Name())
		if err != nil {
			return errors.Wrapf(err, "error reading migration: %s", e.Name())
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return errors.Wrapf(err, "error starting transaction for migration: %s", e.Name())
		}
		if _, err := tx.ExecContext(ctx, string(sqlBytes)); err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "error applying migration: %s", e.Name())
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`,
			e.Name(), time.Now().UTC().Unix(),
		); err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "error recording migration: %s", e.Name())
		}
		if err := tx.Commit(); err != nil {
			return errors.Wrapf(err, "error committing migration: %s", e.Name())
		}
	}
	return nil
}
