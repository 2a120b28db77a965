package catalog

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strconv"
	"strings"

	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationTable is the goose version store. The name is part of the
// schema contract consumed by external collaborators.
const migrationTable = "_migrations"

// newMigrationProvider builds a goose v3 Provider over the embedded SQL
// migrations (no global state, context-aware), recording applied versions
// in the _migrations table.
func newMigrationProvider(db *sql.DB) (*goose.Provider, error) {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("catalog: creating migration sub-filesystem: %w", err)
	}

	store, err := database.NewStore(database.DialectSQLite3, migrationTable)
	if err != nil {
		return nil, fmt.Errorf("catalog: creating migration store: %w", err)
	}

	provider, err := goose.NewProvider("", db, subFS, goose.WithStore(store))
	if err != nil {
		return nil, fmt.Errorf("catalog: creating migration provider: %w", err)
	}

	return provider, nil
}

// migrationSources lists the embedded migration files by name, in
// version order.
func migrationSources() ([]string, error) {
	matches, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("catalog: listing embedded migrations: %w", err)
	}

	sources := make([]string, len(matches))
	for i, m := range matches {
		sources[i] = path.Base(m)
	}

	return sources, nil
}

// migrationVersion parses the numeric version prefix of a migration
// file name such as 00001_files.sql.
func migrationVersion(source string) (int64, error) {
	prefix, _, found := strings.Cut(source, "_")
	if !found {
		return 0, fmt.Errorf("catalog: migration %s has no version prefix", source)
	}

	version, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("catalog: migration %s has no version prefix: %w", source, err)
	}

	return version, nil
}

// pendingMigrations compares the embedded migration sources against the
// _migrations version table without touching the database: the table is
// read only if it already exists, so the check is safe on a read-only
// connection.
func pendingMigrations(ctx context.Context, db *sql.DB) ([]string, error) {
	sources, err := migrationSources()
	if err != nil {
		return nil, err
	}

	hasTable, err := tableExists(ctx, db, migrationTable)
	if err != nil {
		return nil, err
	}

	applied := make(map[int64]bool)

	if hasTable {
		rows, err := db.QueryContext(ctx,
			fmt.Sprintf("SELECT version_id FROM %s", migrationTable))
		if err != nil {
			return nil, fmt.Errorf("catalog: reading applied versions: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var version int64
			if err := rows.Scan(&version); err != nil {
				return nil, fmt.Errorf("catalog: scanning applied version: %w", err)
			}

			applied[version] = true
		}

		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("catalog: iterating applied versions: %w", err)
		}
	}

	var pending []string

	for _, source := range sources {
		version, err := migrationVersion(source)
		if err != nil {
			return nil, err
		}

		if !applied[version] {
			pending = append(pending, source)
		}
	}

	return pending, nil
}

// runMigrations applies all pending schema migrations.
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	provider, err := newMigrationProvider(db)
	if err != nil {
		return err
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("catalog: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}
