package mediastore

import "github.com/gomedia/dlnasrv/internal/mimetable"

// MediaItem mirrors spec §3.2 exactly.
type MediaItem struct {
	ObjectID        string
	ParentFolderID  string
	AbsolutePath    string
	DisplayTitle    string
	SizeBytes       uint64
	Mtime           int64
	MimeType        string
	MediaClass      mimetable.Class
	DurationSeconds *float64
	Resolution      *string
	CreatedAt       int64
	UpdatedAt       int64
}

// FolderNode mirrors spec §3.2.
type FolderNode struct {
	ObjectID     string
	ParentID     string
	AbsolutePath string
	DisplayTitle string
}

// SortCriterion is one +/-field token from a parsed SortCriteria string.
type SortCriterion struct {
	Field      string // "dc:title" | "dc:date" | "upnp:class"
	Descending bool
}

// Page is the result of a children listing or search.
type Page struct {
	Items        []MediaItem
	Folders      []FolderNode
	TotalMatches int
	SystemUpdateID uint32
}

// SearchPredicate is the parsed, supported subset of SearchCriteria
// (spec §4.6.2): `upnp:class derivedfrom "..."` optionally ANDed with
// `dc:title contains "..."`.
type SearchPredicate struct {
	ClassDerivedFrom string // e.g. "object.item.videoItem"
	TitleContains    string // "" means no title filter
}
