package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type migration struct {
	version int
	name    string
}

// pendingMigrations lists the embedded migrations in version order. Files
// are named NNN_description.sql.
func pendingMigrations() ([]migration, error) {
	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	var out []migration
	for _, name := range names {
		prefix, _, ok := strings.Cut(strings.TrimPrefix(name, "migrations/"), "_")
		if !ok {
			continue
		}
		v, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("migration %s: bad version prefix", name)
		}
		out = append(out, migration{version: v, name: name})
	}
	// fs.Glob returns names sorted, and the prefixes are zero-padded.
	return out, nil
}

// appliedVersions returns the versions recorded in schema_migrations. A
// fresh database has no such table yet, which reads as nothing applied.
func (s *Store) appliedVersions(ctx context.Context) map[int]bool {
	applied := make(map[int]bool)
	rows, err := s.pool.Query(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return applied
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return applied
	}
	for _, v := range versions {
		applied[v] = true
	}
	return applied
}

// migrate runs each pending migration in its own transaction together with
// its schema_migrations row.
func (s *Store) migrate(ctx context.Context) error {
	all, err := pendingMigrations()
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}
	applied := s.appliedVersions(ctx)

	for _, m := range all {
		if applied[m.version] {
			continue
		}
		sql, err := migrationFiles.ReadFile(m.name)
		if err != nil {
			return fmt.Errorf("reading %s: %w", m.name, err)
		}
		slog.Info("applying run store migration", "file", m.name, "version", m.version)

		err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(sql)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx,
				"INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT DO NOTHING", m.version)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
	}
	return nil
}
