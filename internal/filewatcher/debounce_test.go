package filewatcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/anacrolix/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeEventsCollapsesCreateThenModify(t *testing.T) {
	prev := Event{Kind: Created, Path: "/a/b.mkv"}
	next := Event{Kind: Modified, Path: "/a/b.mkv"}
	merged := mergeEvents(prev, next)
	assert.Equal(t, Created, merged.Kind)
}

func TestMergeEventsDeleteAlwaysWins(t *testing.T) {
	prev := Event{Kind: Created, Path: "/a/b.mkv"}
	next := Event{Kind: Deleted, Path: "/a/b.mkv"}
	merged := mergeEvents(prev, next)
	assert.Equal(t, Deleted, merged.Kind)
}

func TestAcceptedFiltersByExtensionAndExclude(t *testing.T) {
	w := &Watcher{opts: Options{Extensions: []string{"mkv"}, ExcludePatterns: []string{".*"}}}
	assert.True(t, w.accepted("/media/movie.mkv"))
	assert.False(t, w.accepted("/media/movie.srt"))
	assert.False(t, w.accepted("/media/.hidden.mkv"))
}

func TestWatcherCoalescesRapidWritesIntoOneEvent(t *testing.T) {
	dir := t.TempDir()
	w, err := New(Options{Root: dir, Recursive: true}, log.Default)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	path := filepath.Join(dir, "file.mkv")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case ev := <-w.Events:
		assert.Equal(t, path, ev.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for coalesced event")
	}

	select {
	case ev := <-w.Events:
		t.Fatalf("expected exactly one coalesced event, got a second: %+v", ev)
	case <-time.After(debounceWindow + 200*time.Millisecond):
	}
}

func TestFlushRequestsResyncOnOverflow(t *testing.T) {
	w := &Watcher{
		logger:  log.Default,
		pending: make(map[string]Event),
		Events:  make(chan Event, 1),
	}
	w.Events <- Event{Kind: Modified, Path: "/already/full"}
	w.pending["/a"] = Event{Kind: Modified, Path: "/a"}
	w.flush()

	ev := <-w.Events
	assert.Equal(t, ResyncRequired, ev)
}
