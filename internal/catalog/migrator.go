package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

// backupTimeFormat names pre-migration backups <db>.backup_YYYYMMDD_HHMMSS.
const backupTimeFormat = "20060102_150405"

// legacyColumns are the columns added to a files table created by older
// catalog tooling. Checked by name against PRAGMA table_info so the repair
// is idempotent regardless of which generation created the table.
var legacyColumns = []struct {
	name string
	ddl  string
}{
	{"status", "TEXT DEFAULT 'active'"},
	{"content_hash", "TEXT"},
	{"deleted_at", "TEXT"},
	{"last_verified_at", "TEXT"},
	{"brand", "TEXT"},
	{"year", "INTEGER"},
	{"location", "TEXT"},
	{"event_type", "TEXT"},
	{"content_type", "TEXT"},
	{"series", "TEXT"},
	{"day", "TEXT"},
	{"episode", "TEXT"},
	{"buy_in", "TEXT"},
	{"players", "TEXT"},
	{"tags", "TEXT"},
	{"display_title", "TEXT"},
}

// MigrateResult reports what a migration run did (or, in dry-run mode,
// would do).
type MigrateResult struct {
	BackupPath   string
	ColumnsAdded []string
	Pending      []string // migration sources applied (or pending in dry-run)
	DryRun       bool
}

// Migrate upgrades the catalog schema at dbPath: a sibling backup copy is
// taken, a legacy repair pass adds any columns missing from a pre-existing
// files table, and the embedded goose migrations bring the rest of the
// schema current. With dryRun set, the database is opened read-only (or
// not at all when it does not exist yet) and the result lists what would
// change.
func Migrate(ctx context.Context, dbPath string, dryRun bool, logger *slog.Logger) (*MigrateResult, error) {
	result := &MigrateResult{DryRun: dryRun}

	_, statErr := os.Stat(dbPath)
	if statErr != nil && !errors.Is(statErr, os.ErrNotExist) {
		return nil, fmt.Errorf("catalog: stat %s: %w", dbPath, statErr)
	}

	if dryRun {
		if statErr != nil {
			// No database yet, so every embedded migration is pending
			// and there is nothing to inspect on disk.
			pending, err := migrationSources()
			if err != nil {
				return nil, err
			}

			result.Pending = pending

			return result, nil
		}

		return dryRunMigrate(ctx, dbPath, result, logger)
	}

	if statErr == nil {
		backupPath, backupErr := backupDatabase(dbPath)
		if backupErr != nil {
			return nil, backupErr
		}

		result.BackupPath = backupPath
		logger.Info("created pre-migration backup", slog.String("path", backupPath))
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("catalog: opening %s: %w", dbPath, err)
	}
	defer db.Close()

	added, err := repairLegacyColumns(ctx, db, false, logger)
	if err != nil {
		return nil, err
	}

	result.ColumnsAdded = added

	provider, err := newMigrationProvider(db)
	if err != nil {
		return nil, err
	}

	applied, err := provider.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: running migrations: %w", err)
	}

	for _, r := range applied {
		result.Pending = append(result.Pending, r.Source.Path)
		logger.Info("applied migration", slog.String("source", r.Source.Path))
	}

	return result, nil
}

// dryRunMigrate inspects an existing database over a read-only
// connection. The goose provider is not involved because its status
// call bootstraps the version table.
func dryRunMigrate(ctx context.Context, dbPath string, result *MigrateResult, logger *slog.Logger) (*MigrateResult, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("catalog: opening %s read-only: %w", dbPath, err)
	}
	defer db.Close()

	added, err := repairLegacyColumns(ctx, db, true, logger)
	if err != nil {
		return nil, err
	}

	result.ColumnsAdded = added

	pending, err := pendingMigrations(ctx, db)
	if err != nil {
		return nil, err
	}

	result.Pending = pending

	return result, nil
}

// backupDatabase copies the database file to a timestamped sibling.
func backupDatabase(dbPath string) (string, error) {
	backupPath := fmt.Sprintf("%s.backup_%s", dbPath, time.Now().Format(backupTimeFormat))

	src, err := os.Open(dbPath)
	if err != nil {
		return "", fmt.Errorf("catalog: opening database for backup: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(backupPath)
	if err != nil {
		return "", fmt.Errorf("catalog: creating backup %s: %w", backupPath, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(backupPath)

		return "", fmt.Errorf("catalog: copying database to %s: %w", backupPath, err)
	}

	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("catalog: closing backup %s: %w", backupPath, err)
	}

	return backupPath, nil
}

// repairLegacyColumns inspects an existing files table and adds whatever
// target columns it lacks. DBs without a files table are skipped — the
// goose migrations create the table with the full column set. All ALTERs
// run inside one transaction.
func repairLegacyColumns(ctx context.Context, db *sql.DB, dryRun bool, logger *slog.Logger) ([]string, error) {
	exists, err := tableExists(ctx, db, "files")
	if err != nil {
		return nil, err
	}

	if !exists {
		return nil, nil
	}

	existing, err := tableColumns(ctx, db, "files")
	if err != nil {
		return nil, err
	}

	var missing []string

	for _, col := range legacyColumns {
		if !existing[col.name] {
			missing = append(missing, col.name)
		}
	}

	if len(missing) == 0 || dryRun {
		return missing, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: begin legacy repair: %w", err)
	}
	defer tx.Rollback()

	for _, col := range legacyColumns {
		if existing[col.name] {
			continue
		}

		ddl := fmt.Sprintf("ALTER TABLE files ADD COLUMN %s %s", col.name, col.ddl)
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return nil, fmt.Errorf("catalog: adding column %s: %w", col.name, err)
		}

		logger.Info("added missing column", slog.String("column", col.name))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("catalog: commit legacy repair: %w", err)
	}

	return missing, nil
}

// tableExists reports whether a table is present in the schema.
func tableExists(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var found string

	err := db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("catalog: checking table %s: %w", name, err)
	}

	return true, nil
}

// tableColumns returns the column names of a table as a set.
func tableColumns(ctx context.Context, db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("catalog: reading columns of %s: %w", table, err)
	}
	defer rows.Close()

	columns := make(map[string]bool)

	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)

		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return nil, fmt.Errorf("catalog: scanning column info: %w", err)
		}

		columns[name] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterating columns of %s: %w", table, err)
	}

	return columns, nil
}
