// Package objectid derives stable DLNA ObjectIDs from filesystem paths.
//
// IDs must be a pure function of the normalized absolute path: two
// independent scans of the same tree must agree, and losing the database
// must not invalidate IDs a renderer has cached (see spec §3.1).
package objectid

import (
	"hash/fnv"
	"path/filepath"
	"strings"
)

const (
	// Root is the fixed UPnP root container ID.
	Root = "0"
	// VideoContainer, AudioContainer, ImageContainer and FolderContainer are
	// the stable first-level container IDs.
	VideoContainer  = "1"
	AudioContainer  = "2"
	ImageContainer  = "3"
	FolderContainer = "4"

	folderPrefix = "f:"
	itemPrefix   = "i:"
)

// Normalize puts a path into the canonical form IDs are hashed from:
// slash-separated, optionally case-folded. It does not make the path
// absolute; callers pass an absolute path.
func Normalize(absPath string, caseFold bool) string {
	p := filepath.ToSlash(absPath)
	if caseFold {
		p = strings.ToLower(p)
	}
	return p
}

// ForFolder returns the stable ID of a directory beneath "By Folder".
func ForFolder(normalizedPath string) string {
	return folderPrefix + hash16(normalizedPath)
}

// ForItem returns the stable ID of a media file.
func ForItem(normalizedPath string) string {
	return itemPrefix + hash16(normalizedPath)
}

// IsFolder reports whether id names a folder container.
func IsFolder(id string) bool {
	return strings.HasPrefix(id, folderPrefix)
}

// IsItem reports whether id names a media item.
func IsItem(id string) bool {
	return strings.HasPrefix(id, itemPrefix)
}

// hash16 is FNV-1a 64-bit rendered as 16 lowercase hex chars. Not
// security-sensitive: it only needs to be collision-free over one
// operator's working set of files, which FNV-1a comfortably is.
func hash16(s string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	sum := h.Sum64()
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		buf[i] = hexDigits[sum&0xf]
		sum >>= 4
	}
	return string(buf)
}
