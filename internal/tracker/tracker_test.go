package tracker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garimto81/archive-analyzer/internal/catalog"
	"github.com/garimto81/archive-analyzer/internal/config"
)

func testConfig(t *testing.T, root string) *config.Config {
	t.Helper()

	return &config.Config{
		DBPath:            filepath.Join(t.TempDir(), "catalog.db"),
		NASPath:           root,
		PollInterval:      100 * time.Millisecond,
		Debounce:          100 * time.Millisecond,
		ReconcileInterval: time.Hour,
		HashSizeKB:        1,
		VideoExtensions:   []string{".mp4", ".mkv"},
		WatchMode:         config.WatchModePoll,
	}
}

func openTestTracker(t *testing.T, cfg *config.Config) (*Tracker, *catalog.Store) {
	t.Helper()

	store, err := catalog.Open(context.Background(), cfg.DBPath, testLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	tr, err := New(cfg, store, testLogger(t))
	require.NoError(t, err)

	return tr, store
}

func TestTracker_MissingRootIsFatal(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, filepath.Join(t.TempDir(), "no-such-mount"))
	tr, _ := openTestTracker(t, cfg)

	_, err := tr.RunOnce(context.Background())
	require.Error(t, err)
}

func TestTracker_RunOnceCatalogsNewFile(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	cfg := testConfig(t, root)
	tr, store := openTestTracker(t, cfg)

	type outcome struct {
		result *Result
		err    error
	}

	done := make(chan outcome, 1)
	go func() {
		result, err := tr.RunOnce(context.Background())
		done <- outcome{result, err}
	}()

	// Land the file right after the baseline walk so the next poll tick
	// sees it.
	time.Sleep(20 * time.Millisecond)
	path := writeBytes(t, root, "WSOP/2024/new.mp4", []byte("fresh upload"))

	var got outcome
	select {
	case got = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("RunOnce did not return")
	}

	require.NoError(t, got.err)
	assert.Equal(t, 1, got.result.Created)

	row, err := store.GetActiveByPath(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "WSOP", row.Brand)
}

func TestTracker_ReconcileIntake(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeBytes(t, root, "a.mp4", []byte("file a"))
	writeBytes(t, root, "nested/b.mkv", []byte("file b"))
	writeBytes(t, root, "skip.txt", []byte("not a video"))

	cfg := testConfig(t, root)
	tr, store := openTestTracker(t, cfg)

	report, result, err := tr.Reconcile(context.Background(), ReconcileOptions{Intake: true})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Orphans)
	assert.Equal(t, 2, result.Created)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.ActiveFiles)
}

func TestTracker_RunDrainsOnCancel(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	cfg := testConfig(t, root)
	tr, store := openTestTracker(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())

	type outcome struct {
		result *Result
		err    error
	}

	done := make(chan outcome, 1)
	go func() {
		result, err := tr.Run(ctx)
		done <- outcome{result, err}
	}()

	time.Sleep(20 * time.Millisecond)
	path := writeBytes(t, root, "during.mp4", []byte("written while running"))

	// Let a poll tick observe the file, then shut down before the
	// debounce timer fires; the shutdown flush must still apply it.
	time.Sleep(150 * time.Millisecond)
	cancel()

	var got outcome
	select {
	case got = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	require.NoError(t, got.err)

	_, err := store.GetActiveByPath(context.Background(), path)
	assert.NoError(t, err, "event flushed at shutdown must reach the catalog")
}

func TestTracker_NativeModeSelectable(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	cfg := testConfig(t, root)
	cfg.WatchMode = config.WatchModeNative
	tr, _ := openTestTracker(t, cfg)

	if _, ok := tr.observer.(*NativeObserver); !ok {
		t.Fatalf("observer is %T, want *NativeObserver", tr.observer)
	}

	// Removing the root after construction makes startup fail fast.
	require.NoError(t, os.RemoveAll(root))

	_, err := tr.RunOnce(context.Background())
	require.Error(t, err)
}
