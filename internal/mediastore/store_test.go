package mediastore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/anacrolix/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomedia/dlnasrv/internal/mimetable"
	"github.com/gomedia/dlnasrv/internal/objectid"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(context.Background(), filepath.Join(dir, "test.db"), log.Default)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertItemCreatesFolderChainAndBumpsSUID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	s.SetCaseFold("/media", false)

	before, err := s.SystemUpdateID(ctx)
	require.NoError(t, err)

	item := MediaItem{
		AbsolutePath: "/media/movies/Alien.mkv",
		DisplayTitle: "Alien",
		SizeBytes:    1000,
		Mtime:        1,
		MimeType:     "video/x-matroska",
		MediaClass:   mimetable.ClassVideo,
	}
	suid, err := s.UpsertItem(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, before+1, suid)

	got, err := s.GetByID(ctx, objectid.ForItem(s.normalize("/media/movies/Alien.mkv")))
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.Item)
	assert.Equal(t, "Alien", got.Item.DisplayTitle)
	assert.NotEqual(t, objectid.FolderContainer, got.Item.ParentFolderID)
}

func TestListChildrenVideoContainerIsFlatByClass(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	s.SetCaseFold("/media", false)

	_, err := s.UpsertItem(ctx, MediaItem{AbsolutePath: "/media/a/1.mkv", DisplayTitle: "One", MimeType: "video/x-matroska", MediaClass: mimetable.ClassVideo})
	require.NoError(t, err)
	_, err = s.UpsertItem(ctx, MediaItem{AbsolutePath: "/media/b/2.mkv", DisplayTitle: "Two", MimeType: "video/x-matroska", MediaClass: mimetable.ClassVideo})
	require.NoError(t, err)
	_, err = s.UpsertItem(ctx, MediaItem{AbsolutePath: "/media/a/3.mp3", DisplayTitle: "Three", MimeType: "audio/mpeg", MediaClass: mimetable.ClassAudio})
	require.NoError(t, err)

	page, err := s.ListChildren(ctx, objectid.VideoContainer, 0, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalMatches)
	assert.Len(t, page.Items, 2)
}

func TestListChildrenOnItemReturnsErrNotAContainer(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	s.SetCaseFold("/media", false)
	_, err := s.UpsertItem(ctx, MediaItem{AbsolutePath: "/media/x.mkv", DisplayTitle: "X", MimeType: "video/x-matroska", MediaClass: mimetable.ClassVideo})
	require.NoError(t, err)

	id := objectid.ForItem(s.normalize("/media/x.mkv"))
	_, err = s.ListChildren(ctx, id, 0, 0, nil)
	assert.ErrorIs(t, err, ErrNotAContainer)
}

func TestDeleteByPathPrunesEmptyFolders(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	s.SetCaseFold("/media", false)

	_, err := s.UpsertItem(ctx, MediaItem{AbsolutePath: "/media/only/child.mkv", DisplayTitle: "Child", MimeType: "video/x-matroska", MediaClass: mimetable.ClassVideo})
	require.NoError(t, err)

	folderID := objectid.ForFolder(s.normalize("/media/only"))
	folder, err := s.GetByID(ctx, folderID)
	require.NoError(t, err)
	require.NotNil(t, folder)

	n, _, err := s.DeleteByPath(ctx, "/media/only/child.mkv")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	folder, err = s.GetByID(ctx, folderID)
	require.NoError(t, err)
	assert.Nil(t, folder)
}

func TestDeleteMissingRemovesUnkeptPaths(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	s.SetCaseFold("/media", false)

	_, err := s.UpsertItem(ctx, MediaItem{AbsolutePath: "/media/keep.mkv", DisplayTitle: "Keep", MimeType: "video/x-matroska", MediaClass: mimetable.ClassVideo})
	require.NoError(t, err)
	_, err = s.UpsertItem(ctx, MediaItem{AbsolutePath: "/media/gone.mkv", DisplayTitle: "Gone", MimeType: "video/x-matroska", MediaClass: mimetable.ClassVideo})
	require.NoError(t, err)

	n, _, err := s.DeleteMissing(ctx, "/media", []string{"/media/keep.mkv"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.GetByID(ctx, objectid.ForItem(s.normalize("/media/gone.mkv")))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSearchByClassDerivedFrom(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	s.SetCaseFold("/media", false)

	_, err := s.UpsertItem(ctx, MediaItem{AbsolutePath: "/media/Alien.mkv", DisplayTitle: "Alien", MimeType: "video/x-matroska", MediaClass: mimetable.ClassVideo})
	require.NoError(t, err)
	_, err = s.UpsertItem(ctx, MediaItem{AbsolutePath: "/media/Aliens.mkv", DisplayTitle: "Aliens", MimeType: "video/x-matroska", MediaClass: mimetable.ClassVideo})
	require.NoError(t, err)

	page, err := s.Search(ctx, objectid.VideoContainer, SearchPredicate{ClassDerivedFrom: "object.item.videoItem", TitleContains: "Alien"}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalMatches)

	_, err = s.Search(ctx, objectid.VideoContainer, SearchPredicate{}, 0, 0)
	assert.ErrorIs(t, err, ErrUnsupportedPredicate)
}

func TestOpenRebuildsCorruptDatabase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corrupt.db")
	require.NoError(t, os.WriteFile(path, []byte("not a sqlite file"), 0o644))

	s, err := Open(context.Background(), path, log.Default)
	require.NoError(t, err)
	defer s.Close()

	suid, err := s.SystemUpdateID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(0), suid)
}
