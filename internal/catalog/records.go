// Package catalog implements the SQLite-backed catalog store that mirrors
// the archive filesystem. The files table holds one row per observed media
// file; file_history is an append-only audit log of every semantic event
// applied to a row. The store is shared read by all components but written
// only by the event applier, which keeps catalog mutations serialized.
package catalog

import "time"

// Row status values for files.status.
const (
	StatusActive  = "active"
	StatusDeleted = "deleted"
)

// History event types for file_history.event_type.
const (
	EventCreated    = "created"
	EventModified   = "modified"
	EventMoved      = "moved"
	EventDeleted    = "deleted"
	EventReanimated = "reanimated"
)

// FileRecord is one row of the files table. ID is derived from the
// normalized path at first observation and never changes afterward; Path
// tracks the file as it moves.
type FileRecord struct {
	ID             string
	Path           string
	Filename       string
	SizeBytes      int64
	ContentHash    string // 64-bit xxHash of the leading 512 KiB, hex
	Status         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      time.Time // zero unless Status == StatusDeleted
	LastVerifiedAt time.Time // zero until the reconciler has seen the path

	// Extracted metadata. Zero values mean "not present".
	Brand        string
	Year         int
	Location     string
	EventType    string
	ContentType  string
	Series       string
	Day          string
	Episode      string
	BuyIn        string
	Players      []string
	Tags         []string
	DisplayTitle string
}

// HistoryRecord is one row of the append-only file_history table. Rows are
// written in the same transaction as the catalog mutation they describe
// and are never updated or deleted afterward.
type HistoryRecord struct {
	ID         int64
	FileID     string
	EventType  string
	OldPath    string
	NewPath    string
	OldHash    string
	NewHash    string
	DetectedAt time.Time
	Metadata   string // free-form, e.g. reason for reconciler-generated events
}

// Stats summarizes catalog contents for the status subcommand.
type Stats struct {
	ActiveFiles    int64
	DeletedFiles   int64
	ActiveBytes    int64
	HistoryTotal   int64
	HistoryByEvent map[string]int64
	LastDetectedAt time.Time
	LastVerifiedAt time.Time
}
