package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, root string, opts Options) *Watcher {
	t.Helper()

	w, err := New(opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Start(ctx, root)
	}()
	t.Cleanup(func() {
		cancel()
		_ = w.Stop()
		<-done
	})

	// Give fsnotify time to register the directories
	time.Sleep(100 * time.Millisecond)
	return w
}

// waitFor reads batches until one contains an event for id.
func waitFor(t *testing.T, w *Watcher, id string) RecordEvent {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case batch, ok := <-w.Events():
			require.True(t, ok, "events channel closed")
			for _, ev := range batch {
				if ev.ID == id {
					return ev
				}
			}
		case <-deadline:
			t.Fatalf("timeout waiting for event for %s", id)
		}
	}
}

func TestWatcher_New(t *testing.T) {
	w, err := New(DefaultOptions())
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	assert.Equal(t, "fsnotify", w.Mode())
}

func TestWatcher_ForcePolling(t *testing.T) {
	w, err := New(Options{ForcePolling: true})
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	assert.Equal(t, "polling", w.Mode())
}

func TestWatcher_Start_MissingRoot(t *testing.T) {
	w, err := New(DefaultOptions())
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	err = w.Start(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestWatcher_RecordCreated(t *testing.T) {
	// Given: a watched root with an existing type directory
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "article"), 0o755))
	w := startWatcher(t, root, Options{DebounceWindow: 20 * time.Millisecond})

	// When: a record is written
	writeRecord(t, root, "article", "1", `{"title":"hi"}`)

	// Then: one event for it arrives
	ev := waitFor(t, w, "1")
	assert.Equal(t, "article", ev.Type)
	assert.Contains(t, []Operation{OpCreate, OpModify}, ev.Operation)
	assert.Equal(t, filepath.Join(w.Root(), "article", "1.json"), ev.Path)
}

func TestWatcher_NewTypeDirectory(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root, Options{DebounceWindow: 20 * time.Millisecond})

	writeRecord(t, root, "comment", "7", `{}`)

	ev := waitFor(t, w, "7")
	assert.Equal(t, "comment", ev.Type)
}

func TestWatcher_RecordDeleted(t *testing.T) {
	root := t.TempDir()
	path := writeRecord(t, root, "article", "2", `{}`)
	w := startWatcher(t, root, Options{DebounceWindow: 20 * time.Millisecond})

	require.NoError(t, os.Remove(path))

	ev := waitFor(t, w, "2")
	assert.Equal(t, OpDelete, ev.Operation)
}

func TestWatcher_IgnoresNonRecords(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "article"), 0o755))
	w := startWatcher(t, root, Options{DebounceWindow: 20 * time.Millisecond})

	require.NoError(t, os.WriteFile(filepath.Join(root, "article", "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "top.json"), []byte("{}"), 0o644))
	writeRecord(t, root, "article", "marker", `{}`)

	// The first batch that arrives only holds the marker record
	ev := waitFor(t, w, "marker")
	assert.Equal(t, "article", ev.Type)
}

func TestWatcher_Stop_ClosesChannels(t *testing.T) {
	w, err := New(DefaultOptions())
	require.NoError(t, err)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	_, ok := <-w.Events()
	assert.False(t, ok)
	_, ok = <-w.Errors()
	assert.False(t, ok)
}
