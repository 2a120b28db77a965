package tracker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/garimto81/archive-analyzer/internal/archivepath"
)

// fileMeta is the per-file state a polling snapshot remembers.
type fileMeta struct {
	size    int64
	modTime time.Time
}

// PollingObserver diffs periodic directory walks against the previous
// snapshot. This is the required observation mode: the archive is an SMB
// mount, and kernel notification across SMB is unreliable. Renames show
// up as a delete plus a create; the applier's identity lookup stitches
// them back together.
type PollingObserver struct {
	interval   time.Duration
	extensions map[string]bool
	logger     *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewPollingObserver creates a polling observer walking every interval.
func NewPollingObserver(interval time.Duration, extensions map[string]bool, logger *slog.Logger) *PollingObserver {
	return &PollingObserver{
		interval:   interval,
		extensions: extensions,
		logger:     logger,
	}
}

// Start primes a baseline snapshot and then walks every interval,
// emitting the diff. The baseline walk emits nothing; catalog population
// for files that predate the tracker is the reconciler's orphan intake.
func (o *PollingObserver) Start(ctx context.Context, root string, sink EventSink) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.mu.Lock()
	o.cancel = cancel
	o.mu.Unlock()

	snapshot, err := o.walkSnapshot(root)
	if err != nil {
		return fmt.Errorf("tracker: priming poll snapshot of %s: %w", root, err)
	}

	o.logger.Info("polling observer started",
		slog.String("root", root),
		slog.Duration("interval", o.interval),
		slog.Int("files", len(snapshot)))

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logger.Debug("polling observer stopped")
			return nil
		case <-ticker.C:
			current, err := o.walkSnapshot(root)
			if err != nil {
				// Keep the old snapshot: a failed walk must not read as a
				// mass delete.
				o.logger.Warn("poll walk failed, skipping cycle", slog.Any("error", err))
				continue
			}

			o.diff(snapshot, current, sink)
			snapshot = current
		}
	}
}

// Stop unblocks a running Start.
func (o *PollingObserver) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}
}

// walkSnapshot records size and mtime for every video file under root,
// keyed by canonical path.
func (o *PollingObserver) walkSnapshot(root string) (map[string]fileMeta, error) {
	snapshot := make(map[string]fileMeta)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are logged and skipped; a transient SMB
			// error on one directory must not fail the whole walk.
			if path == root {
				return err
			}

			o.logger.Warn("skipping unreadable path", slog.String("path", path), slog.Any("error", err))

			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if d.IsDir() {
			return nil
		}

		if !o.extensions[archivepath.Ext(path, true)] {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			o.logger.Warn("skipping unstattable file", slog.String("path", path), slog.Any("error", infoErr))
			return nil
		}

		snapshot[archivepath.Canonical(path)] = fileMeta{
			size:    info.Size(),
			modTime: info.ModTime(),
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("tracker: archive root %s missing: %w", root, err)
		}

		return nil, fmt.Errorf("tracker: walking %s: %w", root, err)
	}

	return snapshot, nil
}

// diff emits created, deleted, and modified events for the delta between
// two snapshots.
func (o *PollingObserver) diff(prev, current map[string]fileMeta, sink EventSink) {
	now := time.Now()

	for path, meta := range current {
		old, existed := prev[path]

		switch {
		case !existed:
			sink.Put(Event{Kind: KindCreated, SrcPath: path, Timestamp: now})
		case old.size != meta.size || !old.modTime.Equal(meta.modTime):
			sink.Put(Event{Kind: KindModified, SrcPath: path, Timestamp: now})
		}
	}

	for path := range prev {
		if _, exists := current[path]; !exists {
			sink.Put(Event{Kind: KindDeleted, SrcPath: path, Timestamp: now})
		}
	}
}
