package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/garimto81/archive-analyzer/internal/catalog"
	"github.com/garimto81/archive-analyzer/internal/config"
	"github.com/garimto81/archive-analyzer/internal/extract"
)

// Tracker wires the pipeline together: observer -> queue -> applier, with
// the reconciler sweeping on a schedule through the same queue.
type Tracker struct {
	cfg        *config.Config
	store      *catalog.Store
	queue      *EventQueue
	applier    *Applier
	reconciler *Reconciler
	observer   Observer
	logger     *slog.Logger
}

// New builds a tracker from resolved configuration and an open store.
// The observation mode comes from cfg.WatchMode; polling is the default
// and the only mode trusted on SMB mounts.
func New(cfg *config.Config, store *catalog.Store, logger *slog.Logger) (*Tracker, error) {
	extractor, err := extract.New()
	if err != nil {
		return nil, fmt.Errorf("tracker: %w", err)
	}

	extensions := cfg.VideoExtensionSet()
	queue := NewEventQueue(cfg.Debounce, logger)
	headerBytes := int64(cfg.HashSizeKB) * 1024

	var observer Observer
	if cfg.WatchMode == config.WatchModeNative {
		observer = NewNativeObserver(extensions, logger)
	} else {
		observer = NewPollingObserver(cfg.PollInterval, extensions, logger)
	}

	return &Tracker{
		cfg:        cfg,
		store:      store,
		queue:      queue,
		applier:    NewApplier(store, extractor, headerBytes, logger),
		reconciler: NewReconciler(store, queue, cfg.NASPath, extensions, logger),
		observer:   observer,
		logger:     logger,
	}, nil
}

// Run is daemon mode: observe until the context is canceled, then flush
// and drain. The applier is not tied to the run context; it exits when
// the queue closes, so events flushed at shutdown still land in the
// catalog.
func (t *Tracker) Run(ctx context.Context) (*Result, error) {
	if err := t.checkRoot(); err != nil {
		return nil, err
	}

	applierDone := make(chan struct{})

	go func() {
		defer close(applierDone)
		t.applier.Run(context.WithoutCancel(ctx), t.queue.Events())
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return t.observer.Start(gctx, t.cfg.NASPath, t.queue)
	})

	g.Go(func() error {
		ticker := time.NewTicker(t.cfg.ReconcileInterval)
		defer ticker.Stop()

		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if _, err := t.reconciler.Run(gctx, ReconcileOptions{Intake: true}); err != nil {
					// Sweeps are best-effort; the next tick retries.
					t.logger.Error("scheduled reconcile failed", slog.Any("error", err))
				}
			}
		}
	})

	runErr := g.Wait()

	t.logger.Info("shutting down, draining event queue", slog.Int("pending", t.queue.Pending()))
	t.queue.Close()
	<-applierDone

	result := t.applier.Result()
	t.logResult(&result)

	if runErr != nil && ctx.Err() == nil {
		return &result, runErr
	}

	return &result, nil
}

// RunOnce starts the pipeline, waits one poll interval plus the debounce
// window, drains, and returns the result. Used for cron-style invocation
// and smoke testing.
func (t *Tracker) RunOnce(ctx context.Context) (*Result, error) {
	if err := t.checkRoot(); err != nil {
		return nil, err
	}

	applierDone := make(chan struct{})

	go func() {
		defer close(applierDone)
		t.applier.Run(context.WithoutCancel(ctx), t.queue.Events())
	}()

	observeCtx, cancelObserve := context.WithCancel(ctx)
	observerDone := make(chan error, 1)

	go func() {
		observerDone <- t.observer.Start(observeCtx, t.cfg.NASPath, t.queue)
	}()

	window := t.cfg.PollInterval + t.cfg.Debounce

	var (
		observerErr    error
		observerExited bool
	)

	select {
	case <-ctx.Done():
	case <-time.After(window):
	case observerErr = <-observerDone:
		observerExited = true
	}

	cancelObserve()

	if !observerExited {
		observerErr = <-observerDone
	}

	t.queue.FlushNow()
	t.queue.Close()
	<-applierDone

	result := t.applier.Result()
	t.logResult(&result)

	if observerErr != nil {
		return &result, observerErr
	}

	return &result, nil
}

// Reconcile runs one sweep outside daemon mode, draining the synthesized
// events before returning.
func (t *Tracker) Reconcile(ctx context.Context, opts ReconcileOptions) (*ReconcileReport, *Result, error) {
	if err := t.checkRoot(); err != nil {
		return nil, nil, err
	}

	applierDone := make(chan struct{})

	go func() {
		defer close(applierDone)
		t.applier.Run(context.WithoutCancel(ctx), t.queue.Events())
	}()

	report, err := t.reconciler.Run(ctx, opts)

	t.queue.Close()
	<-applierDone

	if err != nil {
		return nil, nil, err
	}

	result := t.applier.Result()

	return report, &result, nil
}

// checkRoot refuses to start against a missing archive mount. Observing
// an absent root would read as an empty archive and reconcile everything
// away.
func (t *Tracker) checkRoot() error {
	info, err := os.Stat(t.cfg.NASPath)
	if err != nil {
		return fmt.Errorf("tracker: archive root %s not accessible: %w", t.cfg.NASPath, err)
	}

	if !info.IsDir() {
		return fmt.Errorf("tracker: archive root %s is not a directory", t.cfg.NASPath)
	}

	return nil
}

func (t *Tracker) logResult(result *Result) {
	t.logger.Info("run result",
		slog.Int("created", result.Created),
		slog.Int("updated", result.Updated),
		slog.Int("moved", result.Moved),
		slog.Int("deleted", result.Deleted),
		slog.Int("reanimated", result.Reanimated),
		slog.Int("errors", result.Errors))
}
