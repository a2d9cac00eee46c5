// Package indexer walks configured directories into the MediaStore and
// keeps it in sync with FileWatcher events (spec §4.4, component C4). The
// walk shape is grounded on mutagen's synchronization scan
// (pkg/synchronization/core/scan.go) and on CineVault's library scanner;
// unlike mutagen, a scan does not compare files against a previous
// snapshot, it upserts every accepted file. Metadata probing follows the
// teacher dms.go's ffmpegProbe, now backed by github.com/anacrolix/ffprobe
// (already a teacher dependency); probe results are not cached.
package indexer

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/anacrolix/ffprobe"
	"github.com/anacrolix/log"
	"github.com/gabriel-vasile/mimetype"

	"github.com/gomedia/dlnasrv/internal/config"
	"github.com/gomedia/dlnasrv/internal/filewatcher"
	"github.com/gomedia/dlnasrv/internal/mediastore"
	"github.com/gomedia/dlnasrv/internal/mimetable"
)

// State is the Indexer's lifecycle state (spec §4.4).
type State int32

const (
	StateUnscanned State = iota
	StateScanning
	StateSteady
	StateResyncing
)

func (s State) String() string {
	switch s {
	case StateUnscanned:
		return "unscanned"
	case StateScanning:
		return "scanning"
	case StateSteady:
		return "steady"
	case StateResyncing:
		return "resyncing"
	default:
		return "unknown"
	}
}

// Indexer owns the walk/reconcile/steady-state lifecycle for every
// configured directory against a shared MediaStore.
type Indexer struct {
	store   *mediastore.Store
	dirs    []config.Directory
	logger  log.Logger
	probeAV bool

	state atomic.Int32
}

// New builds an Indexer over dirs, using store as the backing catalog.
// probeAV enables ffprobe-based duration/resolution enrichment; it is a
// per-deployment toggle since ffprobe requires the ffprobe binary on PATH.
func New(store *mediastore.Store, dirs []config.Directory, probeAV bool, logger log.Logger) *Indexer {
	idx := &Indexer{
		store:   store,
		dirs:    dirs,
		logger:  logger.WithNames("indexer"),
		probeAV: probeAV,
	}
	idx.state.Store(int32(StateUnscanned))
	return idx
}

// State returns the Indexer's current lifecycle state.
func (idx *Indexer) State() State {
	return State(idx.state.Load())
}

// FullScan walks every configured directory, upserting every accepted file
// and then deleting anything no longer present. Files are not compared
// against their stored size/mtime first, so every scan rewrites each row
// and advances SystemUpdateID even when nothing on disk has changed.
func (idx *Indexer) FullScan(ctx context.Context) error {
	idx.state.Store(int32(StateScanning))
	defer idx.state.Store(int32(StateSteady))

	for _, dir := range idx.dirs {
		idx.store.SetCaseFold(dir.Path, detectCaseFold(dir.Path))
		kept, err := idx.walkOne(ctx, dir)
		if err != nil {
			return err
		}
		if _, _, err := idx.store.DeleteMissing(ctx, dir.Path, kept); err != nil {
			return err
		}
	}
	return nil
}

func (idx *Indexer) walkOne(ctx context.Context, dir config.Directory) ([]string, error) {
	var kept []string
	exts := dir.Extensions
	if len(exts) == 0 {
		exts = mimetable.DefaultExtensions()
	}
	err := filepath.WalkDir(dir.Path, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			idx.logger.Levelf(log.Warning, "indexer: walk %s: %v", path, err)
			return nil
		}
		if d.IsDir() {
			if path != dir.Path && !dir.Recursive {
				return filepath.SkipDir
			}
			if matchesAny(dir.ExcludePatterns, filepath.Base(path)) {
				return filepath.SkipDir
			}
			return nil
		}
		if matchesAny(dir.ExcludePatterns, filepath.Base(path)) {
			return nil
		}
		if !acceptedExt(path, exts) {
			return nil
		}
		if err := idx.indexFile(ctx, path); err != nil {
			idx.logger.Levelf(log.Warning, "indexer: index %s: %v", path, err)
			return nil
		}
		kept = append(kept, filepath.Clean(path))
		return nil
	})
	return kept, err
}

func matchesAny(patterns []string, base string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, base); ok {
			return true
		}
	}
	return false
}

func acceptedExt(path string, exts []string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// indexFile upserts one file into the store, enriching it with AV metadata
// when probeAV is set.
func (idx *Indexer) indexFile(ctx context.Context, path string) error {
	info, err := pathInfo(path)
	if err != nil {
		return err
	}
	mime, class, ok := mimetable.Lookup(path)
	if !ok {
		return nil // unrecognized extension snuck past the filter; skip quietly
	}
	idx.diagnoseMimeMismatch(path, mime)

	item := mediastore.MediaItem{
		AbsolutePath: path,
		DisplayTitle: titleFromName(path),
		SizeBytes:    uint64(info.size),
		Mtime:        info.mtime,
		MimeType:     mime,
		MediaClass:   class,
	}
	if idx.probeAV && (class == mimetable.ClassVideo || class == mimetable.ClassAudio) {
		if dur, res, err := probeAVMetadata(ctx, path); err == nil {
			item.DurationSeconds = dur
			item.Resolution = res
		}
	}
	_, err = idx.store.UpsertItem(ctx, item)
	return err
}

// diagnoseMimeMismatch logs, at debug level only, when a content sniff of
// the file's first bytes disagrees with the extension table. It never
// overrides mime_type: the extension table is the source of truth (spec
// §4.4), this exists purely so an operator can see misnamed files.
func (idx *Indexer) diagnoseMimeMismatch(path, extMime string) {
	sniffed, err := mimetype.DetectFile(path)
	if err != nil {
		return
	}
	if !strings.EqualFold(sniffed.String(), extMime) {
		idx.logger.Levelf(log.Debug, "indexer: %s extension implies %s, content sniff says %s", path, extMime, sniffed.String())
	}
}

func titleFromName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

type fileInfo struct {
	size  int64
	mtime int64
}

func pathInfo(path string) (fileInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return fileInfo{}, err
	}
	return fileInfo{size: fi.Size(), mtime: fi.ModTime().Unix()}, nil
}

// probeAVMetadata shells out via ffprobe.Run, whose Info carries Format and
// Streams as loosely-typed JSON maps (as consumed by the teacher's own
// itemExtra helper in dlna/dms/dms.go) rather than a fixed struct.
func probeAVMetadata(ctx context.Context, path string) (*float64, *string, error) {
	info, err := ffprobe.Run(path)
	if err != nil {
		return nil, nil, err
	}
	var dur *float64
	if s, ok := info.Format["duration"].(string); ok {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			dur = &f
		}
	}
	var res *string
	for _, stream := range info.Streams {
		w, wok := numericField(stream["width"])
		h, hok := numericField(stream["height"])
		if wok && hok && w > 0 && h > 0 {
			r := strconv.Itoa(w) + "x" + strconv.Itoa(h)
			res = &r
			break
		}
	}
	return dur, res, nil
}

func numericField(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return int(f), true
		}
	}
	return 0, false
}

// RunSteadyState consumes debounced FileWatcher events until ctx is done,
// applying them to the store one at a time (spec §4.4 steady state). A
// ResyncRequired sentinel triggers a full scan of every configured
// directory instead of a granular update.
func (idx *Indexer) RunSteadyState(ctx context.Context, events <-chan filewatcher.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			idx.handleEvent(ctx, ev)
		}
	}
}

func (idx *Indexer) handleEvent(ctx context.Context, ev filewatcher.Event) {
	if filewatcher.IsResyncRequired(ev) {
		idx.state.Store(int32(StateResyncing))
		if err := idx.FullScan(ctx); err != nil {
			idx.logger.Levelf(log.Warning, "indexer: resync failed: %v", err)
		}
		return
	}
	switch ev.Kind {
	case filewatcher.Deleted:
		if _, _, err := idx.store.DeleteByPath(ctx, ev.Path); err != nil {
			idx.logger.Levelf(log.Warning, "indexer: delete %s: %v", ev.Path, err)
		}
	case filewatcher.Created, filewatcher.Modified:
		if err := idx.indexFile(ctx, ev.Path); err != nil {
			idx.logger.Levelf(log.Warning, "indexer: index %s: %v", ev.Path, err)
		}
	case filewatcher.Renamed:
		if ev.OldPath != "" {
			idx.store.DeleteByPath(ctx, ev.OldPath)
		}
		// fsnotify reports a rename as a single event carrying only the path
		// it knows, with no guaranteed old/new correlation (spec §4.3's
		// Renamed{from,to} is an idealization fsnotify can't always supply).
		// If ev.Path no longer exists, this is the departure side of a move
		// (possibly out of the watched tree): treat it as a delete so the
		// Renamed{from,to} semantics in spec §3.3 ("DELETE old + INSERT
		// new") still hold even when only "old" is observed here; the
		// arrival side surfaces separately as its own Created event.
		if _, err := os.Stat(ev.Path); err != nil {
			if _, _, derr := idx.store.DeleteByPath(ctx, ev.Path); derr != nil {
				idx.logger.Levelf(log.Warning, "indexer: delete (renamed away) %s: %v", ev.Path, derr)
			}
			return
		}
		if err := idx.indexFile(ctx, ev.Path); err != nil {
			idx.logger.Levelf(log.Warning, "indexer: index %s: %v", ev.Path, err)
		}
	}
}

// detectCaseFold probes whether root's filesystem is case-insensitive by
// checking if an upper-cased form of the path resolves back to it. This is
// a best-effort heuristic appropriate for a one-time-per-root check, not a
// hot path.
func detectCaseFold(root string) bool {
	upper := strings.ToUpper(root)
	if upper == root {
		return false // nothing to distinguish, assume case-sensitive
	}
	if _, err := os.Stat(upper); err != nil {
		return false
	}
	return true
}
