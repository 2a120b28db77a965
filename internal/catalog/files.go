package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by lookups that matched no row.
var ErrNotFound = errors.New("catalog: record not found")

// fileColumns is the column list shared by all file row queries.
const fileColumns = `id, path, filename, size_bytes, content_hash, status,
	created_at, updated_at, deleted_at, last_verified_at,
	brand, year, location, event_type, content_type, series, day, episode,
	buy_in, players, tags, display_title`

// IsUniqueViolation reports whether err is a unique-constraint failure.
// The applier uses this to detect a path race with the reconciler.
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetActiveByPath returns the active row for a canonical path, or
// ErrNotFound.
func (s *Store) GetActiveByPath(ctx context.Context, path string) (*FileRecord, error) {
	return s.queryOne(ctx, `WHERE path = ? AND status = ?`, path, StatusActive)
}

// GetByID returns a row regardless of status, or ErrNotFound.
func (s *Store) GetByID(ctx context.Context, id string) (*FileRecord, error) {
	return s.queryOne(ctx, `WHERE id = ?`, id)
}

// FindActiveByIdentity returns the active row matching the identity pair
// exactly, or ErrNotFound. Identity is (content_hash, size_bytes) — both
// must match; header collisions on re-encodes differ in size.
func (s *Store) FindActiveByIdentity(ctx context.Context, hash string, size int64) (*FileRecord, error) {
	return s.queryOne(ctx,
		`WHERE content_hash = ? AND size_bytes = ? AND status = ?`, hash, size, StatusActive)
}

// FindDeletedByIdentity returns the most recently deleted row matching the
// identity pair, or ErrNotFound. Used to reanimate rows when an identical
// file reappears after a soft delete.
func (s *Store) FindDeletedByIdentity(ctx context.Context, hash string, size int64) (*FileRecord, error) {
	return s.queryOne(ctx,
		`WHERE content_hash = ? AND size_bytes = ? AND status = ? ORDER BY updated_at DESC LIMIT 1`,
		hash, size, StatusDeleted)
}

// ListActive returns all active rows ordered by path.
func (s *Store) ListActive(ctx context.Context) ([]FileRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE status = ? ORDER BY path`, StatusActive)
	if err != nil {
		return nil, fmt.Errorf("catalog: listing active files: %w", err)
	}
	defer rows.Close()

	var records []FileRecord

	for rows.Next() {
		rec, scanErr := scanFile(rows)
		if scanErr != nil {
			return nil, scanErr
		}

		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterating active files: %w", err)
	}

	return records, nil
}

// InsertFileTx inserts a new active row. CreatedAt/UpdatedAt are stamped
// by the store clock; the caller provides everything else.
func (s *Store) InsertFileTx(tx *sql.Tx, rec *FileRecord) error {
	now := s.now()

	players, tags, err := encodeLists(rec)
	if err != nil {
		return err
	}

	_, err = tx.Exec(
		`INSERT INTO files (`+fileColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Path, rec.Filename, rec.SizeBytes, nullString(rec.ContentHash),
		StatusActive, formatTime(now), formatTime(now),
		nullString(rec.Brand), nullInt(rec.Year), nullString(rec.Location),
		nullString(rec.EventType), nullString(rec.ContentType), nullString(rec.Series),
		nullString(rec.Day), nullString(rec.Episode), nullString(rec.BuyIn),
		players, tags, nullString(rec.DisplayTitle),
	)
	if err != nil {
		return fmt.Errorf("catalog: inserting %s: %w", rec.Path, err)
	}

	return nil
}

// UpdatePathTx rewrites path and filename of a row, preserving its ID.
func (s *Store) UpdatePathTx(tx *sql.Tx, id, newPath, newFilename string) error {
	result, err := tx.Exec(
		`UPDATE files SET path = ?, filename = ?, updated_at = ? WHERE id = ?`,
		newPath, newFilename, formatTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("catalog: updating path of %s: %w", id, err)
	}

	return requireOneRow(result, id, "path update")
}

// UpdateMetadataTx replaces the extracted-metadata columns of a row.
// Called whenever a row is created or its path changes.
func (s *Store) UpdateMetadataTx(tx *sql.Tx, id string, rec *FileRecord) error {
	players, tags, err := encodeLists(rec)
	if err != nil {
		return err
	}

	result, err := tx.Exec(
		`UPDATE files SET brand = ?, year = ?, location = ?, event_type = ?,
		 content_type = ?, series = ?, day = ?, episode = ?, buy_in = ?,
		 players = ?, tags = ?, display_title = ?, updated_at = ?
		 WHERE id = ?`,
		nullString(rec.Brand), nullInt(rec.Year), nullString(rec.Location),
		nullString(rec.EventType), nullString(rec.ContentType), nullString(rec.Series),
		nullString(rec.Day), nullString(rec.Episode), nullString(rec.BuyIn),
		players, tags, nullString(rec.DisplayTitle), formatTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("catalog: updating metadata of %s: %w", id, err)
	}

	return requireOneRow(result, id, "metadata update")
}

// SoftDeleteTx marks a row deleted. The row keeps its path for history;
// the partial unique index only covers active rows.
func (s *Store) SoftDeleteTx(tx *sql.Tx, id string) error {
	now := formatTime(s.now())

	result, err := tx.Exec(
		`UPDATE files SET status = ?, deleted_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		StatusDeleted, now, now, id, StatusActive)
	if err != nil {
		return fmt.Errorf("catalog: soft-deleting %s: %w", id, err)
	}

	return requireOneRow(result, id, "soft delete")
}

// ReanimateTx reactivates a soft-deleted row at a new path.
func (s *Store) ReanimateTx(tx *sql.Tx, id, newPath, newFilename string) error {
	result, err := tx.Exec(
		`UPDATE files SET status = ?, deleted_at = NULL, path = ?, filename = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		StatusActive, newPath, newFilename, formatTime(s.now()), id, StatusDeleted)
	if err != nil {
		return fmt.Errorf("catalog: reanimating %s: %w", id, err)
	}

	return requireOneRow(result, id, "reanimate")
}

// UpdateContentTx records a new content hash and size after modification.
func (s *Store) UpdateContentTx(tx *sql.Tx, id, hash string, size int64) error {
	result, err := tx.Exec(
		`UPDATE files SET content_hash = ?, size_bytes = ?, updated_at = ? WHERE id = ?`,
		hash, size, formatTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("catalog: updating content of %s: %w", id, err)
	}

	return requireOneRow(result, id, "content update")
}

// AppendHistoryTx appends an audit row. DetectedAt defaults to the store
// clock when unset. History rows are never updated or deleted.
func (s *Store) AppendHistoryTx(tx *sql.Tx, h *HistoryRecord) error {
	detectedAt := h.DetectedAt
	if detectedAt.IsZero() {
		detectedAt = s.now()
	}

	_, err := tx.Exec(
		`INSERT INTO file_history (file_id, event_type, old_path, new_path, old_hash, new_hash, detected_at, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		h.FileID, h.EventType, nullString(h.OldPath), nullString(h.NewPath),
		nullString(h.OldHash), nullString(h.NewHash), formatTime(detectedAt),
		nullString(h.Metadata))
	if err != nil {
		return fmt.Errorf("catalog: appending %s history for %s: %w", h.EventType, h.FileID, err)
	}

	return nil
}

// UpdateHash updates a row's content hash outside any event flow. Part of
// the identity-store contract used by maintenance tooling.
func (s *Store) UpdateHash(ctx context.Context, id, hash string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE files SET content_hash = ?, updated_at = ? WHERE id = ?`,
		hash, formatTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("catalog: updating hash of %s: %w", id, err)
	}

	return requireOneRow(result, id, "hash update")
}

// MarkVerified stamps last_verified_at on the given rows in one
// transaction. Called by the reconciler for paths that still exist.
func (s *Store) MarkVerified(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	return s.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`UPDATE files SET last_verified_at = ? WHERE id = ?`)
		if err != nil {
			return fmt.Errorf("catalog: preparing verification update: %w", err)
		}
		defer stmt.Close()

		stamp := formatTime(at.UTC().Truncate(time.Second))

		for _, id := range ids {
			if _, err := stmt.Exec(stamp, id); err != nil {
				return fmt.Errorf("catalog: marking %s verified: %w", id, err)
			}
		}

		return nil
	})
}

// History returns the audit rows for one file, oldest first.
func (s *Store) History(ctx context.Context, fileID string) ([]HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_id, event_type, old_path, new_path, old_hash, new_hash, detected_at, metadata
		 FROM file_history WHERE file_id = ? ORDER BY id`, fileID)
	if err != nil {
		return nil, fmt.Errorf("catalog: loading history for %s: %w", fileID, err)
	}
	defer rows.Close()

	var records []HistoryRecord

	for rows.Next() {
		var (
			h                                   HistoryRecord
			oldPath, newPath, oldHash, newHash  sql.NullString
			detectedAt, metadata                sql.NullString
		)

		if err := rows.Scan(&h.ID, &h.FileID, &h.EventType, &oldPath, &newPath,
			&oldHash, &newHash, &detectedAt, &metadata); err != nil {
			return nil, fmt.Errorf("catalog: scanning history row: %w", err)
		}

		h.OldPath = oldPath.String
		h.NewPath = newPath.String
		h.OldHash = oldHash.String
		h.NewHash = newHash.String
		h.Metadata = metadata.String
		h.DetectedAt = parseTime(detectedAt)

		records = append(records, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterating history rows: %w", err)
	}

	return records, nil
}

// Stats summarizes the catalog for status reporting.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{HistoryByEvent: make(map[string]int64)}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM files WHERE status = ?`,
		StatusActive).Scan(&stats.ActiveFiles, &stats.ActiveBytes)
	if err != nil {
		return nil, fmt.Errorf("catalog: counting active files: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM files WHERE status = ?`, StatusDeleted).Scan(&stats.DeletedFiles)
	if err != nil {
		return nil, fmt.Errorf("catalog: counting deleted files: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT event_type, COUNT(*) FROM file_history GROUP BY event_type`)
	if err != nil {
		return nil, fmt.Errorf("catalog: counting history events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			event string
			count int64
		)

		if err := rows.Scan(&event, &count); err != nil {
			return nil, fmt.Errorf("catalog: scanning history count: %w", err)
		}

		stats.HistoryByEvent[event] = count
		stats.HistoryTotal += count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterating history counts: %w", err)
	}

	var lastDetected, lastVerified sql.NullString

	if err := s.db.QueryRowContext(ctx,
		`SELECT MAX(detected_at) FROM file_history`).Scan(&lastDetected); err != nil {
		return nil, fmt.Errorf("catalog: reading last detection time: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT MAX(last_verified_at) FROM files`).Scan(&lastVerified); err != nil {
		return nil, fmt.Errorf("catalog: reading last verification time: %w", err)
	}

	stats.LastDetectedAt = parseTime(lastDetected)
	stats.LastVerifiedAt = parseTime(lastVerified)

	return stats, nil
}

// queryOne runs a single-row file query. The whereClause is always a
// compile-time constant.
func (s *Store) queryOne(ctx context.Context, whereClause string, args ...any) (*FileRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files `+whereClause, args...)

	rec, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, err
	}

	return rec, nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanFile scans one files row, decoding JSON lists and timestamps.
func scanFile(row rowScanner) (*FileRecord, error) {
	var (
		rec                                      FileRecord
		contentHash, brand, location             sql.NullString
		eventType, contentType, series           sql.NullString
		day, episode, buyIn, displayTitle        sql.NullString
		players, tags                            sql.NullString
		createdAt, updatedAt, deletedAt          sql.NullString
		lastVerifiedAt                           sql.NullString
		year                                     sql.NullInt64
	)

	err := row.Scan(&rec.ID, &rec.Path, &rec.Filename, &rec.SizeBytes, &contentHash,
		&rec.Status, &createdAt, &updatedAt, &deletedAt, &lastVerifiedAt,
		&brand, &year, &location, &eventType, &contentType, &series, &day,
		&episode, &buyIn, &players, &tags, &displayTitle)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, fmt.Errorf("catalog: scanning file row: %w", err)
	}

	rec.ContentHash = contentHash.String
	rec.Brand = brand.String
	rec.Year = int(year.Int64)
	rec.Location = location.String
	rec.EventType = eventType.String
	rec.ContentType = contentType.String
	rec.Series = series.String
	rec.Day = day.String
	rec.Episode = episode.String
	rec.BuyIn = buyIn.String
	rec.DisplayTitle = displayTitle.String
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	rec.DeletedAt = parseTime(deletedAt)
	rec.LastVerifiedAt = parseTime(lastVerifiedAt)

	if players.Valid && players.String != "" {
		if err := json.Unmarshal([]byte(players.String), &rec.Players); err != nil {
			return nil, fmt.Errorf("catalog: decoding players for %s: %w", rec.ID, err)
		}
	}

	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &rec.Tags); err != nil {
			return nil, fmt.Errorf("catalog: decoding tags for %s: %w", rec.ID, err)
		}
	}

	return &rec, nil
}

// encodeLists JSON-encodes the players and tags slices for storage.
func encodeLists(rec *FileRecord) (players, tags sql.NullString, err error) {
	if len(rec.Players) > 0 {
		b, marshalErr := json.Marshal(rec.Players)
		if marshalErr != nil {
			return players, tags, fmt.Errorf("catalog: encoding players for %s: %w", rec.ID, marshalErr)
		}

		players = sql.NullString{String: string(b), Valid: true}
	}

	if len(rec.Tags) > 0 {
		b, marshalErr := json.Marshal(rec.Tags)
		if marshalErr != nil {
			return players, tags, fmt.Errorf("catalog: encoding tags for %s: %w", rec.ID, marshalErr)
		}

		tags = sql.NullString{String: string(b), Valid: true}
	}

	return players, tags, nil
}

// requireOneRow turns a zero-row UPDATE into an ErrNotFound so callers can
// distinguish "row vanished" from success.
func requireOneRow(result sql.Result, id, op string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("catalog: %s rows affected for %s: %w", op, id, err)
	}

	if n == 0 {
		return fmt.Errorf("catalog: %s for %s: %w", op, id, ErrNotFound)
	}

	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return time.Time{}
	}

	return t.UTC()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}
