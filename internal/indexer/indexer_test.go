package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/anacrolix/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomedia/dlnasrv/internal/config"
	"github.com/gomedia/dlnasrv/internal/filewatcher"
	"github.com/gomedia/dlnasrv/internal/mediastore"
	"github.com/gomedia/dlnasrv/internal/objectid"
)

func openTestStore(t *testing.T) *mediastore.Store {
	t.Helper()
	s, err := mediastore.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), log.Default)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFullScanIndexesAcceptedFilesOnly(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "movie.mkv"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))

	store := openTestStore(t)
	idx := New(store, []config.Directory{{Path: root, Recursive: true}}, false, log.Default)
	require.NoError(t, idx.FullScan(context.Background()))

	id := objectid.ForItem(objectid.Normalize(filepath.Join(root, "movie.mkv"), false))
	row, err := store.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, row)
	require.NotNil(t, row.Item)

	page, err := store.ListChildren(context.Background(), objectid.VideoContainer, 0, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalMatches)
}

func TestFullScanDeletesMissingAfterRescan(t *testing.T) {
	root := t.TempDir()
	moviePath := filepath.Join(root, "movie.mkv")
	require.NoError(t, os.WriteFile(moviePath, []byte("x"), 0o644))

	store := openTestStore(t)
	idx := New(store, []config.Directory{{Path: root, Recursive: true}}, false, log.Default)
	require.NoError(t, idx.FullScan(context.Background()))

	require.NoError(t, os.Remove(moviePath))
	require.NoError(t, idx.FullScan(context.Background()))

	id := objectid.ForItem(objectid.Normalize(moviePath, false))
	row, err := store.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestHandleEventRenamedAwayDeletesStaleRow(t *testing.T) {
	root := t.TempDir()
	oldPath := filepath.Join(root, "old.mkv")
	require.NoError(t, os.WriteFile(oldPath, []byte("x"), 0o644))

	store := openTestStore(t)
	idx := New(store, []config.Directory{{Path: root, Recursive: true}}, false, log.Default)
	require.NoError(t, idx.indexFile(context.Background(), oldPath))

	id := objectid.ForItem(objectid.Normalize(oldPath, false))
	row, err := store.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, row)

	// The departure side of a move: fsnotify's Rename op carries oldPath,
	// which no longer exists on disk once the move completes.
	require.NoError(t, os.Remove(oldPath))
	idx.handleEvent(context.Background(), filewatcher.Event{Kind: filewatcher.Renamed, Path: oldPath})

	row, err = store.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestHandleEventRenamedArrivalIndexesNewPath(t *testing.T) {
	root := t.TempDir()
	newPath := filepath.Join(root, "new.mkv")
	require.NoError(t, os.WriteFile(newPath, []byte("x"), 0o644))

	store := openTestStore(t)
	idx := New(store, []config.Directory{{Path: root, Recursive: true}}, false, log.Default)

	idx.handleEvent(context.Background(), filewatcher.Event{Kind: filewatcher.Renamed, Path: newPath})

	id := objectid.ForItem(objectid.Normalize(newPath, false))
	row, err := store.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, row)
}

func TestAcceptedExtHonorsConfiguredList(t *testing.T) {
	assert.True(t, acceptedExt("/a/b.mp4", []string{"mp4", "mkv"}))
	assert.False(t, acceptedExt("/a/b.txt", []string{"mp4", "mkv"}))
}

func TestTitleFromNameStripsExtension(t *testing.T) {
	assert.Equal(t, "Alien", titleFromName("/media/Alien.mkv"))
}

func TestStateTransitionsThroughFullScan(t *testing.T) {
	root := t.TempDir()
	store := openTestStore(t)
	idx := New(store, []config.Directory{{Path: root, Recursive: true}}, false, log.Default)
	assert.Equal(t, StateUnscanned, idx.State())
	require.NoError(t, idx.FullScan(context.Background()))
	assert.Equal(t, StateSteady, idx.State())
}

func TestNumericFieldAcceptsMixedJSONTypes(t *testing.T) {
	v, ok := numericField(float64(1920))
	assert.True(t, ok)
	assert.Equal(t, 1920, v)

	v, ok = numericField("1080")
	assert.True(t, ok)
	assert.Equal(t, 1080, v)

	_, ok = numericField(nil)
	assert.False(t, ok)
}
