package mediastore

import "errors"

// Sentinel errors surfaced by MediaStore operations, per spec §4.2's
// table and the §7 error taxonomy.
var (
	// ErrBusy means the write transaction could not be begun, have its
	// SystemUpdateID bumped, or be committed, or that the store was closed
	// before the write was queued; callers may retry. A caller's context
	// deadline surfaces as the context's own error instead.
	ErrBusy = errors.New("mediastore: store busy")
	// ErrIntegrityViolation means a write would break I1-I3 (duplicate
	// object_id, duplicate absolute_path, or an orphaned parent).
	ErrIntegrityViolation = errors.New("mediastore: integrity violation")
	// ErrNotAContainer means list_children was called against an item.
	ErrNotAContainer = errors.New("mediastore: not a container")
	// ErrUnsupportedPredicate means Search was asked for criteria outside
	// the supported subset (spec §4.6.2).
	ErrUnsupportedPredicate = errors.New("mediastore: unsupported search predicate")
	// ErrCorrupt names a database file that fails its integrity self-check.
	// Open does not return it: Open moves such a file aside itself and
	// starts an empty database, which a full Indexer pass then refills
	// (spec §4.2 Recovery).
	ErrCorrupt = errors.New("mediastore: database corrupt")
)
