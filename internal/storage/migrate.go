package storage

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
)

// migrationLockID keys the advisory lock held while a migration is applied,
// so replicas starting together apply each file once.
const migrationLockID = 0x6d6f74696679

type migration struct {
	name string
	sql  string
}

// loadMigrations reads the .sql files at the root of fsys in name order
func loadMigrations(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var out []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		content, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", e.Name(), err)
		}
		out = append(out, migration{name: e.Name(), sql: string(content)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out, nil
}

// Migrate creates the configured schema if needed and applies pending migrations
func (r *PostgresRepository) Migrate(ctx context.Context, fsys fs.FS) error {
	pending, err := loadMigrations(fsys)
	if err != nil {
		return err
	}

	if r.schema != "" {
		if _, err := r.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pq.QuoteIdentifier(r.schema)); err != nil {
			return fmt.Errorf("failed to create schema %s: %w", r.schema, err)
		}
	}

	if _, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied := 0
	for _, m := range pending {
		ran, err := r.applyMigration(ctx, m)
		if err != nil {
			return err
		}
		if ran {
			applied++
		}
	}

	slog.Info("database migrations complete", "applied", applied, "total", len(pending), "schema", r.schema)
	return nil
}

// applyMigration runs m in its own transaction unless it is already recorded
func (r *PostgresRepository) applyMigration(ctx context.Context, m migration) (bool, error) {
	ran := false
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(migrationLockID)); err != nil {
			return fmt.Errorf("failed to lock migrations: %w", err)
		}

		var done bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)`, m.name,
		).Scan(&done); err != nil {
			return fmt.Errorf("failed to check migration %s: %w", m.name, err)
		}
		if done {
			slog.Debug("migration already applied", "migration", m.name)
			return nil
		}

		if _, err := tx.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", m.name, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, m.name); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", m.name, err)
		}

		slog.Info("migration applied", "migration", m.name)
		ran = true
		return nil
	})
	return ran, err
}
