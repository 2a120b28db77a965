// Package tracker implements the file-identity tracking pipeline: the
// debouncing event queue, the header-hash identity function, filesystem
// observers, the single-writer event applier, and the reconciliation
// sweep. Raw filesystem notifications enter through an Observer, coalesce
// in the EventQueue, and exit as semantic catalog mutations performed by
// the Applier.
package tracker

import "time"

// EventKind classifies a raw filesystem notification.
type EventKind string

const (
	KindCreated  EventKind = "created"
	KindModified EventKind = "modified"
	KindMoved    EventKind = "moved"
	KindDeleted  EventKind = "deleted"
)

// Event is one raw notification. Paths are canonical (forward slashes,
// UNC prefix preserved). DstPath is set only for KindMoved.
type Event struct {
	Kind      EventKind
	SrcPath   string
	DstPath   string
	Timestamp time.Time
}

// EventSink accepts raw events. The EventQueue is the production sink;
// tests substitute recorders.
type EventSink interface {
	Put(ev Event)
}
