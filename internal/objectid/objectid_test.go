package objectid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForItemIsPureFunctionOfPath(t *testing.T) {
	p := Normalize("/srv/media/Movies/clip.mp4", false)
	a := ForItem(p)
	b := ForItem(p)
	assert.Equal(t, a, b)
	assert.True(t, IsItem(a))
	assert.False(t, IsFolder(a))
}

func TestForFolderDiffersFromForItem(t *testing.T) {
	p := Normalize("/srv/media/Movies", false)
	assert.NotEqual(t, ForFolder(p), ForItem(p))
}

func TestNormalizeCaseFold(t *testing.T) {
	assert.Equal(t, Normalize("/Srv/Media", true), Normalize("/srv/media", true))
	assert.NotEqual(t, Normalize("/Srv/Media", false), Normalize("/srv/media", false))
}

func TestHashesAreSixteenHexChars(t *testing.T) {
	id := ForItem("/a/b/c")
	assert.Len(t, id, len(itemPrefix)+16)
}
