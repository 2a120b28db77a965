package tracker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newPollObserver(t *testing.T) *PollingObserver {
	t.Helper()

	return NewPollingObserver(25*time.Millisecond, videoExtensions, testLogger(t))
}

// eventsByKind waits until the sink holds want events and indexes them.
func eventsByKind(t *testing.T, sink *recordingSink, want int) map[EventKind][]string {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)

	for time.Now().Before(deadline) {
		if len(sink.all()) >= want {
			break
		}

		time.Sleep(10 * time.Millisecond)
	}

	events := sink.all()
	if len(events) < want {
		t.Fatalf("got %d events, want at least %d", len(events), want)
	}

	byKind := make(map[EventKind][]string)
	for _, ev := range events {
		byKind[ev.Kind] = append(byKind[ev.Kind], ev.SrcPath)
	}

	return byKind
}

func TestPollingObserver_DiffDetectsChanges(t *testing.T) {
	t.Parallel()

	obs := newPollObserver(t)
	root := t.TempDir()

	existing := writeBytes(t, root, "existing.mp4", []byte("present at start"))
	doomed := writeBytes(t, root, "doomed.mp4", []byte("will be removed"))

	prev, err := obs.walkSnapshot(root)
	if err != nil {
		t.Fatal(err)
	}

	if len(prev) != 2 {
		t.Fatalf("baseline has %d files, want 2", len(prev))
	}

	// One create, one delete, one grow-in-place.
	added := writeBytes(t, root, "sub/added.mkv", []byte("new arrival"))
	writeBytes(t, root, "existing.mp4", []byte("present at start, now longer"))

	if err := os.Remove(doomed); err != nil {
		t.Fatal(err)
	}

	current, err := obs.walkSnapshot(root)
	if err != nil {
		t.Fatal(err)
	}

	sink := &recordingSink{}
	obs.diff(prev, current, sink)

	byKind := eventsByKind(t, sink, 3)

	if got := byKind[KindCreated]; len(got) != 1 || got[0] != added {
		t.Errorf("created = %v, want [%s]", got, added)
	}

	if got := byKind[KindDeleted]; len(got) != 1 || got[0] != doomed {
		t.Errorf("deleted = %v, want [%s]", got, doomed)
	}

	if got := byKind[KindModified]; len(got) != 1 || got[0] != existing {
		t.Errorf("modified = %v, want [%s]", got, existing)
	}
}

func TestPollingObserver_NonVideoIgnored(t *testing.T) {
	t.Parallel()

	obs := newPollObserver(t)
	root := t.TempDir()

	writeBytes(t, root, "notes.txt", []byte("text"))
	writeBytes(t, root, "thumbs.db", []byte("junk"))
	video := writeBytes(t, root, "real.mp4", []byte("video"))

	snapshot, err := obs.walkSnapshot(root)
	if err != nil {
		t.Fatal(err)
	}

	if len(snapshot) != 1 {
		t.Fatalf("snapshot has %d entries, want 1", len(snapshot))
	}

	if _, ok := snapshot[video]; !ok {
		t.Errorf("snapshot missing %s", video)
	}
}

func TestPollingObserver_MissingRootFailsStart(t *testing.T) {
	t.Parallel()

	obs := newPollObserver(t)

	err := obs.Start(context.Background(), filepath.Join(t.TempDir(), "absent"), &recordingSink{})
	if err == nil {
		t.Fatal("Start succeeded against a missing root")
	}
}

func TestPollingObserver_StartEmitsOnTick(t *testing.T) {
	t.Parallel()

	obs := newPollObserver(t)
	root := t.TempDir()
	sink := &recordingSink{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- obs.Start(ctx, root, sink)
	}()

	// Give the baseline walk a moment, then create a file for the next
	// tick to find.
	time.Sleep(50 * time.Millisecond)
	created := writeBytes(t, root, "live.mp4", []byte("created while watching"))

	byKind := eventsByKind(t, sink, 1)
	if got := byKind[KindCreated]; len(got) != 1 || got[0] != created {
		t.Errorf("created = %v, want [%s]", got, created)
	}

	obs.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("observer did not stop")
	}
}
