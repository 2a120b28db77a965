package tracker

import (
	"log/slog"
	"sync"
	"time"
)

// defaultQueueBuffer sizes the output channel. Coalescing bounds the
// number of events per flush by the number of distinct paths touched in
// one debounce window; a full channel blocks the flush, not the
// observers.
const defaultQueueBuffer = 256

// EventQueue is a per-path coalescing buffer with a single trailing-edge
// flush timer. Put merges events for the same source path; when the
// debounce interval passes without a Put, all pending entries drain onto
// the output channel and the pending map clears.
//
// One shared timer covers all paths. Bursty reorganizations produce
// thousands of events, and a timer per path would dominate CPU.
type EventQueue struct {
	debounce time.Duration
	logger   *slog.Logger
	out      chan Event

	// sendMu serializes flush and Close so a timer-driven flush can
	// never send on a channel Close is about to close.
	sendMu sync.Mutex

	mu      sync.Mutex
	pending map[string]Event
	timer   *time.Timer
	closed  bool
}

// NewEventQueue creates a queue flushing after the given debounce
// interval.
func NewEventQueue(debounce time.Duration, logger *slog.Logger) *EventQueue {
	return &EventQueue{
		debounce: debounce,
		logger:   logger,
		out:      make(chan Event, defaultQueueBuffer),
		pending:  make(map[string]Event),
	}
}

// Events returns the output channel. Closed by Close after the final
// drain, which lets the applier range to completion.
func (q *EventQueue) Events() <-chan Event {
	return q.out
}

// Put inserts or merges an event and resets the flush timer.
//
// Merge rules for a path with a pending entry: deleted is absorbing
// (anything arriving after a pending delete is dropped), an incoming
// deleted replaces any other kind, and otherwise the newer timestamp
// wins.
func (q *EventQueue) Put(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.logger.Warn("event dropped after queue close",
			slog.String("kind", string(ev.Kind)), slog.String("path", ev.SrcPath))

		return
	}

	existing, ok := q.pending[ev.SrcPath]

	switch {
	case !ok:
		q.pending[ev.SrcPath] = ev
	case existing.Kind == KindDeleted:
		// Absorbing: nothing supersedes a pending delete within a window.
	case ev.Kind == KindDeleted:
		q.pending[ev.SrcPath] = ev
	case !ev.Timestamp.Before(existing.Timestamp):
		q.pending[ev.SrcPath] = ev
	}

	q.resetTimerLocked()
}

// FlushNow drains all pending entries immediately. Used at shutdown and
// by run-once mode.
func (q *EventQueue) FlushNow() {
	q.flush()
}

// Close flushes whatever is pending, stops the timer, and closes the
// output channel. Put calls after Close are dropped.
func (q *EventQueue) Close() {
	q.sendMu.Lock()
	defer q.sendMu.Unlock()

	q.mu.Lock()

	if q.closed {
		q.mu.Unlock()
		return
	}

	if q.timer != nil {
		q.timer.Stop()
	}

	drained := q.drainLocked()
	q.closed = true
	q.mu.Unlock()

	for _, ev := range drained {
		q.out <- ev
	}

	close(q.out)
}

// Pending reports the number of buffered entries. Diagnostic only.
func (q *EventQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.pending)
}

// resetTimerLocked (re)arms the shared trailing-edge timer. Caller holds
// q.mu.
func (q *EventQueue) resetTimerLocked() {
	if q.timer == nil {
		q.timer = time.AfterFunc(q.debounce, q.flush)
		return
	}

	q.timer.Reset(q.debounce)
}

// flush moves all pending entries onto the output channel. The map swap
// happens under the mutex; the channel sends do not, so a slow applier
// blocks the flush without blocking observers, whose next writes land in
// the fresh pending map.
func (q *EventQueue) flush() {
	q.sendMu.Lock()
	defer q.sendMu.Unlock()

	q.mu.Lock()
	drained := q.drainLocked()
	closed := q.closed
	q.mu.Unlock()

	if closed || len(drained) == 0 {
		return
	}

	q.logger.Debug("flushing event queue", slog.Int("events", len(drained)))

	for _, ev := range drained {
		q.out <- ev
	}
}

func (q *EventQueue) drainLocked() []Event {
	if len(q.pending) == 0 {
		return nil
	}

	drained := make([]Event, 0, len(q.pending))
	for _, ev := range q.pending {
		drained = append(drained, ev)
	}

	q.pending = make(map[string]Event)

	return drained
}
