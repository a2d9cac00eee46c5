// Package mimetable implements the extension -> MIME/class lookup table
// used by the indexer and the streaming endpoint. This is intentionally a
// static table, not a full decoder: the spec explicitly excludes container
// parsing (spec §1, §6.4).
package mimetable

import "strings"

// Class is the coarse media kind a MediaItem belongs to.
type Class int

const (
	// ClassUnknown marks an extension absent from the table.
	ClassUnknown Class = iota
	ClassVideo
	ClassAudio
	ClassImage
)

func (c Class) String() string {
	switch c {
	case ClassVideo:
		return "Video"
	case ClassAudio:
		return "Audio"
	case ClassImage:
		return "Image"
	default:
		return "Unknown"
	}
}

type entry struct {
	mime  string
	class Class
}

var table = map[string]entry{
	"mp4":  {"video/mp4", ClassVideo},
	"mkv":  {"video/x-matroska", ClassVideo},
	"avi":  {"video/x-msvideo", ClassVideo},
	"mov":  {"video/quicktime", ClassVideo},
	"webm": {"video/webm", ClassVideo},
	"m4v":  {"video/mp4", ClassVideo},
	"wmv":  {"video/x-ms-wmv", ClassVideo},
	"mpg":  {"video/mpeg", ClassVideo},
	"mpeg": {"video/mpeg", ClassVideo},
	"ts":   {"video/mp2t", ClassVideo},

	"mp3":  {"audio/mpeg", ClassAudio},
	"flac": {"audio/flac", ClassAudio},
	"wav":  {"audio/wav", ClassAudio},
	"ogg":  {"audio/ogg", ClassAudio},
	"m4a":  {"audio/mp4", ClassAudio},
	"aac":  {"audio/aac", ClassAudio},
	"wma":  {"audio/x-ms-wma", ClassAudio},

	"jpg":  {"image/jpeg", ClassImage},
	"jpeg": {"image/jpeg", ClassImage},
	"png":  {"image/png", ClassImage},
	"gif":  {"image/gif", ClassImage},
	"webp": {"image/webp", ClassImage},
	"heic": {"image/heic", ClassImage},
	"bmp":  {"image/bmp", ClassImage},
}

// upnpClasses maps our coarse Class to the exact strict upnp:class the
// DIDL-Lite serializer must emit (spec §4.6.2).
var upnpClasses = map[Class]string{
	ClassVideo: "object.item.videoItem",
	ClassAudio: "object.item.audioItem.musicTrack",
	ClassImage: "object.item.imageItem.photo",
}

// Lookup returns the MIME type and class for a filename's extension.
// ok is false for unrecognized extensions, which callers must exclude.
func Lookup(name string) (mime string, class Class, ok bool) {
	ext := extOf(name)
	e, found := table[ext]
	if !found {
		return "", ClassUnknown, false
	}
	return e.mime, e.class, true
}

// UPnPClass returns the strict upnp:class value for a Class.
func UPnPClass(c Class) string {
	return upnpClasses[c]
}

func extOf(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 || i == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

// DefaultExtensions lists every extension accepted when a media.directories
// entry does not configure its own `extensions` list (spec §6.1).
func DefaultExtensions() []string {
	exts := make([]string, 0, len(table))
	for ext := range table {
		exts = append(exts, ext)
	}
	return exts
}
