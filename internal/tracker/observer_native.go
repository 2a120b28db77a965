package tracker

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/garimto81/archive-analyzer/internal/archivepath"
)

// NativeObserver watches the archive with OS-level notification via
// fsnotify. Lower latency and CPU than polling, but only trustworthy on
// local mounts; SMB mounts must use the polling observer. fsnotify does
// not watch recursively, so every directory is added individually and new
// directories are added as their create events arrive.
type NativeObserver struct {
	extensions map[string]bool
	logger     *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewNativeObserver creates an fsnotify-backed observer.
func NewNativeObserver(extensions map[string]bool, logger *slog.Logger) *NativeObserver {
	return &NativeObserver{
		extensions: extensions,
		logger:     logger,
	}
}

// Start watches root recursively until the context is canceled. A rename
// arrives as a rename of the old path plus a create of the new one; the
// old side is emitted as deleted and the applier's identity lookup turns
// the pair back into a move.
func (o *NativeObserver) Start(ctx context.Context, root string, sink EventSink) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.mu.Lock()
	o.cancel = cancel
	o.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("tracker: creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := addRecursive(watcher, root); err != nil {
		return err
	}

	o.logger.Info("native observer started",
		slog.String("root", root),
		slog.Int("watched_dirs", len(watcher.WatchList())))

	for {
		select {
		case <-ctx.Done():
			o.logger.Debug("native observer stopped")
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			o.handle(watcher, ev, sink)
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			o.logger.Warn("watcher error", slog.Any("error", watchErr))
		}
	}
}

// Stop unblocks a running Start.
func (o *NativeObserver) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}
}

func (o *NativeObserver) handle(watcher *fsnotify.Watcher, ev fsnotify.Event, sink EventSink) {
	path := archivepath.Canonical(ev.Name)
	isVideo := o.extensions[archivepath.Ext(path, true)]
	now := time.Now()

	switch {
	case ev.Has(fsnotify.Create):
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := addRecursive(watcher, ev.Name); err != nil {
				o.logger.Warn("watching new directory failed",
					slog.String("path", path), slog.Any("error", err))
			}

			return
		}

		if isVideo {
			sink.Put(Event{Kind: KindCreated, SrcPath: path, Timestamp: now})
		}
	case ev.Has(fsnotify.Write):
		if isVideo {
			sink.Put(Event{Kind: KindModified, SrcPath: path, Timestamp: now})
		}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if isVideo {
			sink.Put(Event{Kind: KindDeleted, SrcPath: path, Timestamp: now})
		}
	}
}

// addRecursive registers root and every directory under it.
func addRecursive(watcher *fsnotify.Watcher, root string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("tracker: watching %s: %w", path, err)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("tracker: registering watches under %s: %w", root, err)
	}

	return nil
}
