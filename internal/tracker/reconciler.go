package tracker

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/garimto81/archive-analyzer/internal/archivepath"
	"github.com/garimto81/archive-analyzer/internal/catalog"
)

// ReconcileOptions selects the sweep's passes.
type ReconcileOptions struct {
	// DryRun reports what would change without queueing events or
	// touching verification stamps.
	DryRun bool
	// Intake walks the archive for video files missing from the catalog
	// and synthesizes created events for them.
	Intake bool
}

// ReconcileReport summarizes one sweep.
type ReconcileReport struct {
	Checked  int // active rows examined
	Missing  int // rows whose path no longer exists
	Verified int // rows whose path still exists
	Orphans  int // on-disk video files unknown to the catalog
}

// Reconciler is the out-of-band full sweep that catches drift the
// observer missed, typically from tracker downtime. It never mutates
// catalog rows itself: missing paths and orphans become synthesized
// events applied through the same queue and applier as live
// notifications, which keeps the single-writer invariant and a coherent
// history. The one direct write it is allowed is the last_verified_at
// batch stamp on rows that checked out.
type Reconciler struct {
	store      *catalog.Store
	sink       EventSink
	root       string
	extensions map[string]bool
	logger     *slog.Logger
}

// NewReconciler creates a reconciler sweeping root.
func NewReconciler(store *catalog.Store, sink EventSink, root string, extensions map[string]bool, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:      store,
		sink:       sink,
		root:       root,
		extensions: extensions,
		logger:     logger,
	}
}

// Run performs one sweep: an existence check over every active row, then
// optionally the orphan intake walk.
func (r *Reconciler) Run(ctx context.Context, opts ReconcileOptions) (*ReconcileReport, error) {
	report := &ReconcileReport{}

	records, err := r.store.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(records))
	verified := make([]string, 0, len(records))
	now := time.Now()

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("tracker: reconcile interrupted: %w", err)
		}

		known[rec.Path] = true
		report.Checked++

		if _, statErr := os.Stat(rec.Path); statErr != nil {
			report.Missing++
			r.logger.Debug("cataloged path missing on disk", slog.String("path", rec.Path))

			if !opts.DryRun {
				r.sink.Put(Event{Kind: KindDeleted, SrcPath: rec.Path, Timestamp: now})
			}

			continue
		}

		report.Verified++
		verified = append(verified, rec.ID)
	}

	if !opts.DryRun {
		if err := r.store.MarkVerified(ctx, verified, now); err != nil {
			return nil, err
		}
	}

	if opts.Intake {
		if err := r.intake(ctx, known, opts.DryRun, report); err != nil {
			return nil, err
		}
	}

	r.logger.Info("reconcile sweep finished",
		slog.Int("checked", report.Checked),
		slog.Int("missing", report.Missing),
		slog.Int("verified", report.Verified),
		slog.Int("orphans", report.Orphans),
		slog.Bool("dry_run", opts.DryRun))

	return report, nil
}

// intake walks the archive tree and synthesizes created events for video
// files the catalog does not know.
func (r *Reconciler) intake(ctx context.Context, known map[string]bool, dryRun bool, report *ReconcileReport) error {
	now := time.Now()

	err := filepath.WalkDir(r.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == r.root {
				return err
			}

			r.logger.Warn("skipping unreadable path", slog.String("path", path), slog.Any("error", err))

			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if d.IsDir() {
			return nil
		}

		if !r.extensions[archivepath.Ext(path, true)] {
			return nil
		}

		canonical := archivepath.Canonical(path)
		if known[canonical] {
			return nil
		}

		report.Orphans++

		if !dryRun {
			r.sink.Put(Event{Kind: KindCreated, SrcPath: canonical, Timestamp: now})
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("tracker: orphan intake under %s: %w", r.root, err)
	}

	return nil
}
