package mimetable

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupKnownExtensions(t *testing.T) {
	mime, class, ok := Lookup("clip.MP4")
	assert.True(t, ok)
	assert.Equal(t, "video/mp4", mime)
	assert.Equal(t, ClassVideo, class)
}

func TestLookupUnknownExtension(t *testing.T) {
	_, _, ok := Lookup("notes.txt")
	assert.False(t, ok)
}

func TestUPnPClassStrict(t *testing.T) {
	assert.Equal(t, "object.item.videoItem", UPnPClass(ClassVideo))
	assert.Equal(t, "object.item.audioItem.musicTrack", UPnPClass(ClassAudio))
	assert.Equal(t, "object.item.imageItem.photo", UPnPClass(ClassImage))
}

func TestNoExtensionIsUnknown(t *testing.T) {
	_, _, ok := Lookup("README")
	assert.False(t, ok)
}
