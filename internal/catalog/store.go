package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	// Pure-Go SQLite driver, registers as "sqlite".
	_ "modernc.org/sqlite"
)

// walJournalSizeLimit caps the WAL file at 64 MiB.
const walJournalSizeLimit = 67108864

// Store wraps the catalog database. A single Store instance is shared by
// all components; the applier is the only writer to files and
// file_history.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	nowFunc func() time.Time // injectable for deterministic tests
}

// Open opens (creating if necessary) the catalog database at dbPath,
// applies pragmas and pending migrations, and returns the Store. Use
// ":memory:" for tests.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	logger.Info("opening catalog database", slog.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("catalog: opening %s: %w", dbPath, err)
	}

	// The sole-writer discipline makes connection pooling pointless, and a
	// single connection avoids SQLITE_BUSY between applier and readers.
	db.SetMaxOpenConns(1)

	if err := setPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("catalog database ready", slog.String("path", dbPath))

	return &Store{db: db, logger: logger, nowFunc: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("catalog: closing database: %w", err)
	}

	return nil
}

// DB exposes the underlying handle for read-only collaborators (status
// reporting, external exporters).
func (s *Store) DB() *sql.DB {
	return s.db
}

// SetNowFunc overrides the clock. Tests use this to pin timestamps.
func (s *Store) SetNowFunc(now func() time.Time) {
	s.nowFunc = now
}

// now returns the current time in UTC truncated to the second, the
// resolution stored in the database.
func (s *Store) now() time.Time {
	return s.nowFunc().UTC().Truncate(time.Second)
}

// setPragmas configures SQLite for WAL mode and safety.
func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit),
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("catalog: %s: %w", pragma, err)
		}
	}

	return nil
}

// InTx runs fn inside a transaction, committing on nil and rolling back on
// error. The applier uses this to pair each catalog mutation with its
// history append atomically.
func (s *Store) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("catalog: commit transaction: %w", err)
	}

	return nil
}
