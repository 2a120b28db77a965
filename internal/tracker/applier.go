package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/garimto81/archive-analyzer/internal/archivepath"
	"github.com/garimto81/archive-analyzer/internal/catalog"
	"github.com/garimto81/archive-analyzer/internal/extract"
)

// Retry policy for event application.
const (
	defaultMaxAttempts = 3
	baseRetryBackoff   = 500 * time.Millisecond
	maxErrorList       = 20
)

// ApplyErrorKind classifies application failures for the retry policy.
type ApplyErrorKind int

const (
	// ApplyTransient covers I/O failures that may clear on retry, like a
	// file still being written or an SMB hiccup.
	ApplyTransient ApplyErrorKind = iota
	// ApplyConflict is a unique-constraint race with the reconciler; the
	// handler reruns once against re-read state.
	ApplyConflict
	// ApplyFatal errors are surfaced in the result counters without retry.
	ApplyFatal
)

func (k ApplyErrorKind) String() string {
	switch k {
	case ApplyTransient:
		return "transient"
	case ApplyConflict:
		return "conflict"
	default:
		return "fatal"
	}
}

// ApplyError wraps a handler failure with its retry classification.
type ApplyError struct {
	Kind ApplyErrorKind
	Op   string
	Err  error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("tracker: %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *ApplyError) Unwrap() error {
	return e.Err
}

// Result accumulates per-run counters. The error list is bounded; the
// count keeps growing past the cap.
type Result struct {
	Created    int
	Updated    int
	Moved      int
	Deleted    int
	Reanimated int
	Errors     int
	ErrorList  []string
}

// Applier is the single writer between coalesced events and the catalog.
// It consumes from the event queue on one goroutine, classifies each
// event, and performs the catalog mutation plus its history append in one
// transaction.
type Applier struct {
	store       *catalog.Store
	extractor   *extract.Extractor
	logger      *slog.Logger
	headerBytes int64
	maxAttempts int

	// Injectable for deterministic tests.
	identify func(path string, headerBytes int64) (Identity, error)
	sleep    func(d time.Duration)

	mu     sync.Mutex
	result Result
}

// NewApplier creates an applier over the given store and extractor.
// headerBytes is how much of each file's head feeds the identity hash.
func NewApplier(store *catalog.Store, extractor *extract.Extractor, headerBytes int64, logger *slog.Logger) *Applier {
	return &Applier{
		store:       store,
		extractor:   extractor,
		logger:      logger,
		headerBytes: headerBytes,
		maxAttempts: defaultMaxAttempts,
		identify:    ComputeIdentity,
		sleep:       time.Sleep,
	}
}

// Run consumes events until the channel closes. Cancellation is driven by
// closing the queue, not the context: shutdown flushes the queue and the
// applier drains what was flushed. The context bounds individual store
// operations.
func (a *Applier) Run(ctx context.Context, events <-chan Event) {
	for ev := range events {
		a.Apply(ctx, ev)
	}
}

// Apply processes one event through the retry policy. Errors are
// absorbed into the result counters; the tracker never aborts on a
// single bad event.
func (a *Applier) Apply(ctx context.Context, ev Event) {
	for attempt := 1; ; attempt++ {
		err := a.dispatch(ctx, ev)
		if err == nil {
			return
		}

		var applyErr *ApplyError
		if !errors.As(err, &applyErr) {
			applyErr = &ApplyError{Kind: ApplyFatal, Op: string(ev.Kind), Err: err}
		}

		switch applyErr.Kind {
		case ApplyTransient:
			if attempt < a.maxAttempts {
				backoff := baseRetryBackoff << (attempt - 1)
				a.logger.Debug("retrying event",
					slog.String("path", ev.SrcPath),
					slog.Int("attempt", attempt),
					slog.Duration("backoff", backoff))
				a.sleep(backoff)

				continue
			}
		case ApplyConflict:
			// One rerun against re-read state; a second conflict is fatal.
			if attempt == 1 {
				continue
			}
		case ApplyFatal:
		}

		a.recordError(ev, applyErr)

		return
	}
}

// Result returns a copy of the accumulated counters.
func (a *Applier) Result() Result {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := a.result
	out.ErrorList = append([]string(nil), a.result.ErrorList...)

	return out
}

func (a *Applier) dispatch(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case KindCreated:
		return a.handleCreated(ctx, ev.SrcPath)
	case KindDeleted:
		return a.handleDeleted(ctx, ev.SrcPath)
	case KindMoved:
		return a.handleMoved(ctx, ev.SrcPath, ev.DstPath)
	case KindModified:
		return a.handleModified(ctx, ev.SrcPath)
	default:
		return &ApplyError{Kind: ApplyFatal, Op: "dispatch",
			Err: fmt.Errorf("tracker: unknown event kind %q", ev.Kind)}
	}
}

// handleCreated computes identity first: a create whose identity matches
// an existing active row is a move whose delete side was lost, and one
// matching a soft-deleted row is a reanimation. Only an unmatched
// identity inserts a new row.
func (a *Applier) handleCreated(ctx context.Context, path string) error {
	id, err := a.identify(path, a.headerBytes)
	if err != nil {
		return &ApplyError{Kind: ApplyTransient, Op: "created", Err: err}
	}

	return a.createWithIdentity(ctx, path, id)
}

func (a *Applier) createWithIdentity(ctx context.Context, path string, id Identity) error {
	// Already cataloged at this path?
	row, err := a.store.GetActiveByPath(ctx, path)

	switch {
	case err == nil:
		if row.ContentHash == id.Hash && row.SizeBytes == id.Size {
			return nil
		}

		return a.applyContentChange(ctx, row, id)
	case !errors.Is(err, catalog.ErrNotFound):
		return &ApplyError{Kind: ApplyFatal, Op: "created", Err: err}
	}

	// Move detected as create: the source-side delete was lost or
	// deduplicated by SMB.
	row, err = a.store.FindActiveByIdentity(ctx, id.Hash, id.Size)

	switch {
	case err == nil:
		return a.applyMove(ctx, row, path)
	case !errors.Is(err, catalog.ErrNotFound):
		return &ApplyError{Kind: ApplyFatal, Op: "created", Err: err}
	}

	// Reappearance of a soft-deleted identity reanimates its row.
	row, err = a.store.FindDeletedByIdentity(ctx, id.Hash, id.Size)

	switch {
	case err == nil:
		return a.reanimate(ctx, row, path)
	case !errors.Is(err, catalog.ErrNotFound):
		return &ApplyError{Kind: ApplyFatal, Op: "created", Err: err}
	}

	return a.insert(ctx, path, id)
}

func (a *Applier) handleDeleted(ctx context.Context, path string) error {
	row, err := a.store.GetActiveByPath(ctx, path)
	if errors.Is(err, catalog.ErrNotFound) {
		// Spurious delete from a polling diff; nothing to do.
		a.logger.Debug("delete for unknown path dropped", slog.String("path", path))
		return nil
	}

	if err != nil {
		return &ApplyError{Kind: ApplyFatal, Op: "deleted", Err: err}
	}

	err = a.store.InTx(ctx, func(tx *sql.Tx) error {
		if err := a.store.SoftDeleteTx(tx, row.ID); err != nil {
			return err
		}

		return a.store.AppendHistoryTx(tx, &catalog.HistoryRecord{
			FileID:    row.ID,
			EventType: catalog.EventDeleted,
			OldPath:   row.Path,
			OldHash:   row.ContentHash,
		})
	})
	if err != nil {
		return a.classifyTxError(ctx, "deleted", row.ID, err)
	}

	a.count(func(r *Result) { r.Deleted++ })
	a.logger.Info("file deleted", slog.String("path", path), slog.String("id", row.ID))

	return nil
}

func (a *Applier) handleMoved(ctx context.Context, srcPath, dstPath string) error {
	row, err := a.store.GetActiveByPath(ctx, srcPath)
	if errors.Is(err, catalog.ErrNotFound) {
		// Source never recorded; treat the destination as a create.
		return a.handleCreated(ctx, dstPath)
	}

	if err != nil {
		return &ApplyError{Kind: ApplyFatal, Op: "moved", Err: err}
	}

	return a.applyMove(ctx, row, dstPath)
}

func (a *Applier) handleModified(ctx context.Context, path string) error {
	id, err := a.identify(path, a.headerBytes)
	if err != nil {
		return &ApplyError{Kind: ApplyTransient, Op: "modified", Err: err}
	}

	row, err := a.store.GetActiveByPath(ctx, path)
	if errors.Is(err, catalog.ErrNotFound) {
		return a.createWithIdentity(ctx, path, id)
	}

	if err != nil {
		return &ApplyError{Kind: ApplyFatal, Op: "modified", Err: err}
	}

	if row.ContentHash == id.Hash && row.SizeBytes == id.Size {
		// mtime-only change; not an event.
		return nil
	}

	return a.applyContentChange(ctx, row, id)
}

// insert catalogs a genuinely new file: derive the stable ID from the
// path, extract metadata, write row and history together.
func (a *Applier) insert(ctx context.Context, path string, id Identity) error {
	rec := a.recordFromMetadata(path)
	rec.ID = archivepath.FileID(path)
	rec.Path = path
	rec.Filename = archivepath.Basename(path)
	rec.SizeBytes = id.Size
	rec.ContentHash = id.Hash

	err := a.store.InTx(ctx, func(tx *sql.Tx) error {
		if err := a.store.InsertFileTx(tx, rec); err != nil {
			return err
		}

		return a.store.AppendHistoryTx(tx, &catalog.HistoryRecord{
			FileID:    rec.ID,
			EventType: catalog.EventCreated,
			NewPath:   path,
			NewHash:   id.Hash,
		})
	})
	if err != nil {
		if catalog.IsUniqueViolation(err) {
			return &ApplyError{Kind: ApplyConflict, Op: "created", Err: err}
		}

		return &ApplyError{Kind: ApplyFatal, Op: "created", Err: err}
	}

	a.count(func(r *Result) { r.Created++ })
	a.logger.Info("file created", slog.String("path", path), slog.String("id", rec.ID))

	return nil
}

// applyMove rewrites the row's location and refreshes path-derived
// metadata, preserving the row ID.
func (a *Applier) applyMove(ctx context.Context, row *catalog.FileRecord, newPath string) error {
	if row.Path == newPath {
		return nil
	}

	meta := a.recordFromMetadata(newPath)

	err := a.store.InTx(ctx, func(tx *sql.Tx) error {
		if err := a.store.UpdatePathTx(tx, row.ID, newPath, archivepath.Basename(newPath)); err != nil {
			return err
		}

		if err := a.store.UpdateMetadataTx(tx, row.ID, meta); err != nil {
			return err
		}

		return a.store.AppendHistoryTx(tx, &catalog.HistoryRecord{
			FileID:    row.ID,
			EventType: catalog.EventMoved,
			OldPath:   row.Path,
			NewPath:   newPath,
		})
	})
	if err != nil {
		return a.classifyTxError(ctx, "moved", row.ID, err)
	}

	a.count(func(r *Result) { r.Moved++ })
	a.logger.Info("file moved",
		slog.String("from", row.Path), slog.String("to", newPath), slog.String("id", row.ID))

	return nil
}

// reanimate reactivates a soft-deleted row whose identity reappeared.
func (a *Applier) reanimate(ctx context.Context, row *catalog.FileRecord, newPath string) error {
	meta := a.recordFromMetadata(newPath)

	err := a.store.InTx(ctx, func(tx *sql.Tx) error {
		if err := a.store.ReanimateTx(tx, row.ID, newPath, archivepath.Basename(newPath)); err != nil {
			return err
		}

		if err := a.store.UpdateMetadataTx(tx, row.ID, meta); err != nil {
			return err
		}

		return a.store.AppendHistoryTx(tx, &catalog.HistoryRecord{
			FileID:    row.ID,
			EventType: catalog.EventReanimated,
			OldPath:   row.Path,
			NewPath:   newPath,
			NewHash:   row.ContentHash,
		})
	})
	if err != nil {
		if catalog.IsUniqueViolation(err) {
			return &ApplyError{Kind: ApplyConflict, Op: "reanimated", Err: err}
		}

		return a.classifyTxError(ctx, "reanimated", row.ID, err)
	}

	a.count(func(r *Result) { r.Reanimated++ })
	a.logger.Info("file reanimated",
		slog.String("path", newPath), slog.String("id", row.ID))

	return nil
}

// applyContentChange records a new hash and size for a re-encoded file.
func (a *Applier) applyContentChange(ctx context.Context, row *catalog.FileRecord, id Identity) error {
	err := a.store.InTx(ctx, func(tx *sql.Tx) error {
		if err := a.store.UpdateContentTx(tx, row.ID, id.Hash, id.Size); err != nil {
			return err
		}

		return a.store.AppendHistoryTx(tx, &catalog.HistoryRecord{
			FileID:    row.ID,
			EventType: catalog.EventModified,
			OldHash:   row.ContentHash,
			NewHash:   id.Hash,
		})
	})
	if err != nil {
		return a.classifyTxError(ctx, "modified", row.ID, err)
	}

	a.count(func(r *Result) { r.Updated++ })
	a.logger.Info("file modified",
		slog.String("path", row.Path),
		slog.String("old_hash", row.ContentHash),
		slog.String("new_hash", id.Hash))

	return nil
}

// recordFromMetadata runs the extractor on a canonical path and maps the
// result onto catalog fields.
func (a *Applier) recordFromMetadata(path string) *catalog.FileRecord {
	meta := a.extractor.Extract(path, archivepath.Basename(path))

	return &catalog.FileRecord{
		Brand:        meta.Brand,
		Year:         meta.Year,
		Location:     meta.Location,
		EventType:    meta.EventType,
		ContentType:  meta.ContentType,
		Series:       meta.Series,
		Day:          meta.Day,
		Episode:      meta.Episode,
		BuyIn:        meta.BuyIn,
		Players:      meta.Players,
		Tags:         meta.Tags,
		DisplayTitle: meta.DisplayTitle,
	}
}

// classifyTxError separates a row that vanished mid-flight (malformed
// state, noted and absorbed) from real storage failures.
func (a *Applier) classifyTxError(ctx context.Context, op, fileID string, err error) error {
	if errors.Is(err, catalog.ErrNotFound) {
		a.noteMalformed(ctx, fileID, op, err)
		return nil
	}

	return &ApplyError{Kind: ApplyFatal, Op: op, Err: err}
}

// noteMalformed logs an inconsistent-state observation and leaves a
// diagnostic trace in the history log, then lets processing continue.
func (a *Applier) noteMalformed(ctx context.Context, fileID, op string, cause error) {
	a.logger.Warn("inconsistent catalog state",
		slog.String("op", op), slog.String("id", fileID), slog.Any("error", cause))

	err := a.store.InTx(ctx, func(tx *sql.Tx) error {
		return a.store.AppendHistoryTx(tx, &catalog.HistoryRecord{
			FileID:    fileID,
			EventType: op,
			Metadata:  fmt.Sprintf("inconsistent state: %v", cause),
		})
	})
	if err != nil {
		a.logger.Warn("recording diagnostic history failed", slog.Any("error", err))
	}
}

func (a *Applier) count(fn func(r *Result)) {
	a.mu.Lock()
	defer a.mu.Unlock()

	fn(&a.result)
}

func (a *Applier) recordError(ev Event, applyErr *ApplyError) {
	a.logger.Error("event application failed",
		slog.String("kind", string(ev.Kind)),
		slog.String("path", ev.SrcPath),
		slog.String("class", applyErr.Kind.String()),
		slog.Any("error", applyErr.Err))

	a.mu.Lock()
	defer a.mu.Unlock()

	a.result.Errors++

	if len(a.result.ErrorList) < maxErrorList {
		a.result.ErrorList = append(a.result.ErrorList,
			fmt.Sprintf("%s %s: %v", ev.Kind, ev.SrcPath, applyErr.Err))
	}
}
