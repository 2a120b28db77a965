package tracker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garimto81/archive-analyzer/internal/archivepath"
	"github.com/garimto81/archive-analyzer/internal/catalog"
	"github.com/garimto81/archive-analyzer/internal/extract"
)

// newTestApplier wires an applier to a temp-dir catalog with the real
// identity function and extractor.
func newTestApplier(t *testing.T) (*Applier, *catalog.Store) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "catalog.db")

	store, err := catalog.Open(context.Background(), dbPath, testLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	extractor, err := extract.New()
	require.NoError(t, err)

	return NewApplier(store, extractor, testHeaderBytes, testLogger(t)), store
}

func historyKinds(t *testing.T, store *catalog.Store, fileID string) []string {
	t.Helper()

	history, err := store.History(context.Background(), fileID)
	require.NoError(t, err)

	kinds := make([]string, len(history))
	for i, h := range history {
		kinds[i] = h.EventType
	}

	return kinds
}

func TestApplier_RenamePreservesIdentity(t *testing.T) {
	t.Parallel()

	applier, store := newTestApplier(t)
	ctx := context.Background()
	dir := t.TempDir()

	oldPath := writeBytes(t, dir, "WSOP/2024/ME_D1.mp4", []byte("main event day one"))
	applier.Apply(ctx, Event{Kind: KindCreated, SrcPath: oldPath})

	row, err := store.GetActiveByPath(ctx, oldPath)
	require.NoError(t, err)
	originalID := row.ID

	// The file reappears under a new name with identical content; the
	// old path is gone and its delete was never observed.
	newPath := filepath.Join(dir, "WSOP/2024/ME_D1_final.mp4")
	require.NoError(t, os.Rename(oldPath, newPath))
	applier.Apply(ctx, Event{Kind: KindCreated, SrcPath: newPath})

	_, err = store.GetActiveByPath(ctx, oldPath)
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	moved, err := store.GetActiveByPath(ctx, newPath)
	require.NoError(t, err)
	assert.Equal(t, originalID, moved.ID, "rename must preserve the row ID")
	assert.Equal(t, []string{catalog.EventCreated, catalog.EventMoved}, historyKinds(t, store, originalID))

	result := applier.Result()
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Moved)
	assert.Zero(t, result.Errors)
}

func TestApplier_UnchangedModifyDropped(t *testing.T) {
	t.Parallel()

	applier, store := newTestApplier(t)
	ctx := context.Background()
	dir := t.TempDir()

	path := writeBytes(t, dir, "stable.mp4", []byte("steady content"))
	applier.Apply(ctx, Event{Kind: KindCreated, SrcPath: path})

	// Coalescing reduces a 20-notification burst to one event; with the
	// content unchanged even that one is a no-op.
	applier.Apply(ctx, Event{Kind: KindModified, SrcPath: path})

	row, err := store.GetActiveByPath(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []string{catalog.EventCreated}, historyKinds(t, store, row.ID))
	assert.Zero(t, applier.Result().Updated)
}

func TestApplier_ReencodeProducesModified(t *testing.T) {
	t.Parallel()

	applier, store := newTestApplier(t)
	ctx := context.Background()
	dir := t.TempDir()

	path := writeBytes(t, dir, "encode.mp4", []byte("first master"))
	applier.Apply(ctx, Event{Kind: KindCreated, SrcPath: path})

	row, err := store.GetActiveByPath(ctx, path)
	require.NoError(t, err)
	oldHash := row.ContentHash

	writeBytes(t, dir, "encode.mp4", []byte("second master, longer content"))
	applier.Apply(ctx, Event{Kind: KindModified, SrcPath: path})

	row, err = store.GetActiveByPath(ctx, path)
	require.NoError(t, err)
	assert.NotEqual(t, oldHash, row.ContentHash)
	assert.Equal(t, int64(len("second master, longer content")), row.SizeBytes)

	history, err := store.History(ctx, row.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, catalog.EventModified, history[1].EventType)
	assert.Equal(t, oldHash, history[1].OldHash)
	assert.Equal(t, row.ContentHash, history[1].NewHash)
}

func TestApplier_Reanimation(t *testing.T) {
	t.Parallel()

	applier, store := newTestApplier(t)
	ctx := context.Background()
	dir := t.TempDir()

	content := []byte("final master")
	path := writeBytes(t, dir, "original/cut.mp4", content)
	applier.Apply(ctx, Event{Kind: KindCreated, SrcPath: path})

	row, err := store.GetActiveByPath(ctx, path)
	require.NoError(t, err)
	originalID := row.ID

	require.NoError(t, os.Remove(path))
	applier.Apply(ctx, Event{Kind: KindDeleted, SrcPath: path})

	deleted, err := store.GetByID(ctx, originalID)
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusDeleted, deleted.Status)
	assert.False(t, deleted.DeletedAt.IsZero())

	// The identical content reappears somewhere else in the archive.
	restored := writeBytes(t, dir, "restored/cut.mp4", content)
	applier.Apply(ctx, Event{Kind: KindCreated, SrcPath: restored})

	row, err = store.GetActiveByPath(ctx, restored)
	require.NoError(t, err)
	assert.Equal(t, originalID, row.ID, "reanimation reuses the row, never the ID")
	assert.Equal(t, catalog.StatusActive, row.Status)
	assert.True(t, row.DeletedAt.IsZero())

	kinds := historyKinds(t, store, originalID)
	assert.Equal(t, catalog.EventReanimated, kinds[len(kinds)-1])
	assert.Equal(t, 1, applier.Result().Reanimated)
}

func TestApplier_DeleteUnknownPathDropped(t *testing.T) {
	t.Parallel()

	applier, _ := newTestApplier(t)

	applier.Apply(context.Background(), Event{Kind: KindDeleted, SrcPath: "//nas/ARCHIVE/never-seen.mp4"})

	result := applier.Result()
	assert.Zero(t, result.Deleted)
	assert.Zero(t, result.Errors)
}

func TestApplier_MovedEvent(t *testing.T) {
	t.Parallel()

	applier, store := newTestApplier(t)
	ctx := context.Background()
	dir := t.TempDir()

	src := writeBytes(t, dir, "old/name.mp4", []byte("move me"))
	applier.Apply(ctx, Event{Kind: KindCreated, SrcPath: src})

	row, err := store.GetActiveByPath(ctx, src)
	require.NoError(t, err)

	dst := filepath.Join(dir, "new/name.mp4")
	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0o755))
	require.NoError(t, os.Rename(src, dst))
	applier.Apply(ctx, Event{Kind: KindMoved, SrcPath: src, DstPath: dst})

	moved, err := store.GetActiveByPath(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, row.ID, moved.ID)
	assert.Equal(t, archivepath.Basename(dst), moved.Filename)
}

func TestApplier_MovedUnknownSourceDegradesToCreate(t *testing.T) {
	t.Parallel()

	applier, store := newTestApplier(t)
	ctx := context.Background()
	dir := t.TempDir()

	dst := writeBytes(t, dir, "appeared.mp4", []byte("destination only"))
	applier.Apply(ctx, Event{Kind: KindMoved, SrcPath: filepath.Join(dir, "never-was.mp4"), DstPath: dst})

	row, err := store.GetActiveByPath(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, []string{catalog.EventCreated}, historyKinds(t, store, row.ID))
	assert.Equal(t, 1, applier.Result().Created)
}

func TestApplier_TransientRetriesThenSurfaces(t *testing.T) {
	t.Parallel()

	applier, _ := newTestApplier(t)

	attempts := 0
	applier.identify = func(string, int64) (Identity, error) {
		attempts++
		return Identity{}, ErrNotReadable
	}

	var sleeps []time.Duration
	applier.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }

	applier.Apply(context.Background(), Event{Kind: KindCreated, SrcPath: "//nas/ARCHIVE/locked.mp4"})

	assert.Equal(t, 3, attempts, "bounded retry of three attempts")
	assert.Equal(t, []time.Duration{baseRetryBackoff, 2 * baseRetryBackoff}, sleeps)

	result := applier.Result()
	assert.Equal(t, 1, result.Errors)
	require.Len(t, result.ErrorList, 1)
	assert.Contains(t, result.ErrorList[0], "locked.mp4")
}

func TestApplier_TransientRecoversMidRetry(t *testing.T) {
	t.Parallel()

	applier, store := newTestApplier(t)
	ctx := context.Background()
	dir := t.TempDir()

	path := writeBytes(t, dir, "late.mp4", []byte("eventually readable"))

	attempts := 0
	applier.identify = func(p string, headerBytes int64) (Identity, error) {
		attempts++
		if attempts < 2 {
			return Identity{}, ErrNotReadable
		}

		return ComputeIdentity(p, headerBytes)
	}
	applier.sleep = func(time.Duration) {}

	applier.Apply(ctx, Event{Kind: KindCreated, SrcPath: path})

	_, err := store.GetActiveByPath(ctx, path)
	require.NoError(t, err)
	assert.Zero(t, applier.Result().Errors)
}

func TestApplier_MetadataPopulatedOnCreate(t *testing.T) {
	t.Parallel()

	applier, store := newTestApplier(t)
	ctx := context.Background()
	dir := t.TempDir()

	path := writeBytes(t, dir, "WSOP/2024/Main Event Day 1 Final Table.mp4", []byte("broadcast"))
	applier.Apply(ctx, Event{Kind: KindCreated, SrcPath: path})

	row, err := store.GetActiveByPath(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "WSOP", row.Brand)
	assert.Equal(t, 2024, row.Year)
	assert.Equal(t, "Final Table", row.EventType)
	assert.Contains(t, row.Tags, "WSOP")
	assert.Contains(t, row.Tags, "2024")
}

func TestApplier_RunDrainsUntilQueueCloses(t *testing.T) {
	t.Parallel()

	applier, store := newTestApplier(t)
	ctx := context.Background()
	dir := t.TempDir()

	first := writeBytes(t, dir, "one.mp4", []byte("first file"))
	second := writeBytes(t, dir, "two.mp4", []byte("second file"))

	q := NewEventQueue(time.Hour, testLogger(t))
	q.Put(Event{Kind: KindCreated, SrcPath: first})
	q.Put(Event{Kind: KindCreated, SrcPath: second})

	done := make(chan struct{})
	go func() {
		defer close(done)
		applier.Run(ctx, q.Events())
	}()

	q.Close()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("applier did not exit after queue close")
	}

	records, err := store.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestApplier_ErrNotReadableIsTransient(t *testing.T) {
	t.Parallel()

	// The applier's retry policy keys off ErrNotReadable; the wrapped
	// form produced by ComputeIdentity must satisfy errors.Is.
	_, err := ComputeIdentity("/definitely/not/here.mp4", testHeaderBytes)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotReadable))
}
