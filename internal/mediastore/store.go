// Package mediastore is the embedded, transactional media catalog (spec
// §4.2, component C2). It is backed by database/sql over the mattn/go-sqlite3
// driver, grounded in the rclone lineage's own dependency set
// (github.com/mattn/go-sqlite3 in rclone-rclone/go.mod) — the spec's own
// words, "an SQLite-class engine", are met directly rather than re-derived.
//
// All writes funnel through a single goroutine (writeLoop) so that the data
// change and the SystemUpdateID bump commit together or not at all, which is
// the invariant spec §4.2 calls "critical": renderers that poll SUID must
// never observe data changes without an SUID change.
package mediastore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/anacrolix/log"

	"github.com/gomedia/dlnasrv/internal/mimetable"
	"github.com/gomedia/dlnasrv/internal/objectid"
)

// writeJob runs inside a single transaction shared with the SUID bump.
type writeJob func(tx *sql.Tx) (any, error)

type writeRequest struct {
	job  writeJob
	resp chan writeResponse
}

type writeResponse struct {
	value any
	suid  uint32
	err   error
}

// Store is the public MediaStore handle.
type Store struct {
	db     *sql.DB
	path   string
	logger log.Logger

	writeCh chan writeRequest
	done    chan struct{}
	wg      sync.WaitGroup

	mu            sync.RWMutex
	caseFoldRoots map[string]bool // root path -> case-fold this subtree
}

// Open opens (creating if absent) the database at path, running the
// integrity self-check described in spec §4.2 "Recovery". A corrupt
// database is moved aside with a timestamp suffix and rebuilt empty; the
// caller is expected to follow up with a full Indexer pass.
func Open(ctx context.Context, path string, logger log.Logger) (*Store, error) {
	if err := tryOpenAndCheck(ctx, path); err != nil {
		corrupt := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
		logger.Levelf(log.Warning, "mediastore: %s failed integrity check (%v), moving aside to %s", path, err, corrupt)
		if renameErr := os.Rename(path, corrupt); renameErr != nil && !os.IsNotExist(renameErr) {
			return nil, fmt.Errorf("mediastore: renaming corrupt db: %w", renameErr)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=off")
	if err != nil {
		return nil, fmt.Errorf("mediastore: open %s: %w", path, err)
	}
	schemaCtx, cancel := schemaContext()
	defer cancel()
	if err := createSchema(schemaCtx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("mediastore: create schema: %w", err)
	}

	s := &Store{
		db:            db,
		path:          path,
		logger:        logger.WithNames("mediastore"),
		writeCh:       make(chan writeRequest, 64),
		done:          make(chan struct{}),
		caseFoldRoots: make(map[string]bool),
	}
	s.wg.Add(1)
	go s.writeLoop()
	return s, nil
}

func tryOpenAndCheck(ctx context.Context, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // fresh database, nothing to check
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return err
	}
	defer db.Close()
	var result string
	row := db.QueryRowContext(ctx, "PRAGMA integrity_check")
	if err := row.Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("integrity_check: %s", result)
	}
	return nil
}

// Close stops the writer goroutine and closes the database.
func (s *Store) Close() error {
	close(s.done)
	s.wg.Wait()
	return s.db.Close()
}

// SetCaseFold records whether root's filesystem is case-insensitive, as
// detected once per root at startup (spec §4.2 path canonicalization
// policy).
func (s *Store) SetCaseFold(root string, caseFold bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caseFoldRoots[filepath.Clean(root)] = caseFold
}

func (s *Store) caseFoldFor(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	best := ""
	fold := false
	for root, cf := range s.caseFoldRoots {
		if strings.HasPrefix(path, root) && len(root) > len(best) {
			best, fold = root, cf
		}
	}
	return fold
}

func (s *Store) normalize(path string) string {
	return objectid.Normalize(path, s.caseFoldFor(path))
}

func (s *Store) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case req := <-s.writeCh:
			resp := s.runWrite(req.job)
			req.resp <- resp
		}
	}
}

func (s *Store) runWrite(job writeJob) writeResponse {
	tx, err := s.db.Begin()
	if err != nil {
		return writeResponse{err: fmt.Errorf("%w: %v", ErrBusy, err)}
	}
	value, err := job(tx)
	if err != nil {
		tx.Rollback()
		return writeResponse{err: err}
	}
	suid, err := bumpSystemUpdateID(tx)
	if err != nil {
		tx.Rollback()
		return writeResponse{err: fmt.Errorf("%w: %v", ErrBusy, err)}
	}
	if err := tx.Commit(); err != nil {
		return writeResponse{err: fmt.Errorf("%w: %v", ErrBusy, err)}
	}
	return writeResponse{value: value, suid: suid}
}

// submit enqueues job and blocks for its result, bounded by ctx.
func (s *Store) submit(ctx context.Context, job writeJob) (any, uint32, error) {
	req := writeRequest{job: job, resp: make(chan writeResponse, 1)}
	select {
	case s.writeCh <- req:
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	case <-s.done:
		return nil, 0, ErrBusy
	}
	select {
	case resp := <-req.resp:
		return resp.value, resp.suid, resp.err
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	}
}

func bumpSystemUpdateID(tx *sql.Tx) (uint32, error) {
	var cur uint32
	if err := tx.QueryRow(`SELECT value FROM kv WHERE key = 'system_update_id'`).Scan(strAsUint32(&cur)); err != nil {
		return 0, err
	}
	next := cur + 1
	if next == 0 {
		// Overflow of a u32 counter resets to 1 (spec §3.2 I4).
		next = 1
	}
	if _, err := tx.Exec(`UPDATE kv SET value = ? WHERE key = 'system_update_id'`, strconv.FormatUint(uint64(next), 10)); err != nil {
		return 0, err
	}
	return next, nil
}

// strAsUint32 adapts database/sql's text-only kv value to a uint32 target
// via Scan's Scanner protocol.
type uint32Text uint32

func (u *uint32Text) Scan(src any) error {
	s, ok := src.(string)
	if !ok {
		if b, ok := src.([]byte); ok {
			s = string(b)
		} else {
			return fmt.Errorf("unexpected kv value type %T", src)
		}
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return err
	}
	*u = uint32Text(v)
	return nil
}

func strAsUint32(dst *uint32) *uint32Text {
	return (*uint32Text)(dst)
}

// SystemUpdateID returns the current SUID without taking the write queue.
func (s *Store) SystemUpdateID(ctx context.Context) (uint32, error) {
	var v uint32
	row := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = 'system_update_id'`)
	if err := row.Scan(strAsUint32(&v)); err != nil {
		return 0, err
	}
	return v, nil
}

// UpsertItem inserts or updates one MediaItem, creating any missing folder
// ancestors beneath "By Folder" as it goes (FolderNode lifecycle, spec
// §3.3: "created lazily when its first child is indexed").
func (s *Store) UpsertItem(ctx context.Context, item MediaItem) (uint32, error) {
	item.AbsolutePath = filepath.Clean(item.AbsolutePath)
	norm := s.normalize(item.AbsolutePath)
	item.ObjectID = objectid.ForItem(norm)

	parentDir := filepath.Dir(item.AbsolutePath)
	_, suid, err := s.submit(ctx, func(tx *sql.Tx) (any, error) {
		folderID, err := ensureFolderChain(tx, s, parentDir)
		if err != nil {
			return nil, err
		}
		item.ParentFolderID = folderID
		now := time.Now().Unix()
		item.UpdatedAt = now

		var existingCreated int64
		row := tx.QueryRow(`SELECT created_at FROM media_items WHERE object_id = ?`, item.ObjectID)
		switch err := row.Scan(&existingCreated); err {
		case nil:
			item.CreatedAt = existingCreated
		case sql.ErrNoRows:
			item.CreatedAt = now
		default:
			return nil, err
		}

		_, err = tx.Exec(`
			INSERT INTO media_items(
				object_id, parent_folder_id, absolute_path, display_title,
				size_bytes, mtime, mime_type, media_class, duration_seconds,
				resolution, created_at, updated_at
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
			ON CONFLICT(object_id) DO UPDATE SET
				parent_folder_id = excluded.parent_folder_id,
				absolute_path = excluded.absolute_path,
				display_title = excluded.display_title,
				size_bytes = excluded.size_bytes,
				mtime = excluded.mtime,
				mime_type = excluded.mime_type,
				media_class = excluded.media_class,
				duration_seconds = excluded.duration_seconds,
				resolution = excluded.resolution,
				updated_at = excluded.updated_at`,
			item.ObjectID, item.ParentFolderID, item.AbsolutePath, item.DisplayTitle,
			item.SizeBytes, item.Mtime, item.MimeType, int(item.MediaClass), item.DurationSeconds,
			item.Resolution, item.CreatedAt, item.UpdatedAt,
		)
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %v", ErrIntegrityViolation, err)
		}
		return nil, err
	})
	return suid, err
}

// ensureFolderChain creates (idempotently) every FolderNode from the
// configured root down to dir, returning dir's folder ObjectID. The
// top-level root's parent is the static "By Folder" container.
func ensureFolderChain(tx *sql.Tx, s *Store, dir string) (string, error) {
	root := s.rootContaining(dir)
	if root == "" {
		root = dir // unconfigured root: treat dir itself as top-level
	}
	var chain []string
	for d := filepath.Clean(dir); ; d = filepath.Dir(d) {
		chain = append(chain, d)
		if d == root || d == filepath.Dir(d) {
			break
		}
	}
	// chain is leaf-to-root; walk root-to-leaf creating as we go.
	parentID := objectid.FolderContainer
	for i := len(chain) - 1; i >= 0; i-- {
		d := chain[i]
		norm := s.normalize(d)
		id := objectid.ForFolder(norm)
		title := filepath.Base(d)
		if _, err := tx.Exec(`
			INSERT INTO folders(object_id, parent_id, absolute_path, display_title)
			VALUES (?,?,?,?)
			ON CONFLICT(object_id) DO UPDATE SET parent_id = excluded.parent_id`,
			id, parentID, d, title,
		); err != nil {
			return "", err
		}
		parentID = id
	}
	return parentID, nil
}

// rootContaining returns the longest configured root that is a prefix of
// dir, or "" if none match (dir is outside every configured directory).
func (s *Store) rootContaining(dir string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	best := ""
	for root := range s.caseFoldRoots {
		if (dir == root || strings.HasPrefix(dir, root+string(filepath.Separator))) && len(root) > len(best) {
			best = root
		}
	}
	return best
}

// DeleteByPath removes the item at path, if present.
func (s *Store) DeleteByPath(ctx context.Context, path string) (int, uint32, error) {
	path = filepath.Clean(path)
	value, suid, err := s.submit(ctx, func(tx *sql.Tx) (any, error) {
		res, err := tx.Exec(`DELETE FROM media_items WHERE absolute_path = ?`, path)
		if err != nil {
			return nil, err
		}
		n, _ := res.RowsAffected()
		if n > 0 {
			if err := pruneEmptyFolders(tx, filepath.Dir(path)); err != nil {
				return nil, err
			}
		}
		return int(n), nil
	})
	if err != nil {
		return 0, 0, err
	}
	return value.(int), suid, nil
}

// DeleteMissing purges every item beneath root whose path is not in
// keptPaths, used by the Indexer's startup reconcile (spec §4.4 step 3).
func (s *Store) DeleteMissing(ctx context.Context, root string, keptPaths []string) (int, uint32, error) {
	root = filepath.Clean(root)
	kept := make(map[string]struct{}, len(keptPaths))
	for _, p := range keptPaths {
		kept[filepath.Clean(p)] = struct{}{}
	}
	value, suid, err := s.submit(ctx, func(tx *sql.Tx) (any, error) {
		rows, err := tx.Query(`SELECT absolute_path FROM media_items WHERE absolute_path LIKE ?`, root+string(filepath.Separator)+"%")
		if err != nil {
			return nil, err
		}
		var toDelete []string
		for rows.Next() {
			var p string
			if err := rows.Scan(&p); err != nil {
				rows.Close()
				return nil, err
			}
			if _, ok := kept[p]; !ok {
				toDelete = append(toDelete, p)
			}
		}
		rows.Close()
		for _, p := range toDelete {
			if _, err := tx.Exec(`DELETE FROM media_items WHERE absolute_path = ?`, p); err != nil {
				return nil, err
			}
		}
		for _, p := range toDelete {
			if err := pruneEmptyFolders(tx, filepath.Dir(p)); err != nil {
				return nil, err
			}
		}
		return len(toDelete), nil
	})
	if err != nil {
		return 0, 0, err
	}
	return value.(int), suid, nil
}

// pruneEmptyFolders removes folder rows with no children and no
// descendants, walking upward (spec §3.3 FolderNode lifecycle).
func pruneEmptyFolders(tx *sql.Tx, dir string) error {
	for {
		norm := filepath.Clean(dir)
		id := objectid.ForFolder(norm)
		var childItems, childFolders int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM media_items WHERE parent_folder_id = ?`, id).Scan(&childItems); err != nil {
			return err
		}
		if err := tx.QueryRow(`SELECT COUNT(*) FROM folders WHERE parent_id = ?`, id).Scan(&childFolders); err != nil {
			return err
		}
		if childItems > 0 || childFolders > 0 {
			return nil
		}
		res, err := tx.Exec(`DELETE FROM folders WHERE object_id = ?`, id)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return nil
		}
		parentDir := filepath.Dir(dir)
		if parentDir == dir {
			return nil
		}
		dir = parentDir
	}
}

// ObjectRow is the union type GetByID returns: exactly one of Item or
// Folder is non-nil (folders cover both physical directories and the
// four static pseudo-containers).
type ObjectRow struct {
	Item   *MediaItem
	Folder *FolderNode
}

// GetByID resolves any ObjectID: a static container, a folder, or an item.
func (s *Store) GetByID(ctx context.Context, id string) (*ObjectRow, error) {
	if static := staticContainer(id); static != nil {
		return &ObjectRow{Folder: static}, nil
	}
	if objectid.IsItem(id) {
		item, err := s.getItemByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if item == nil {
			return nil, nil
		}
		return &ObjectRow{Item: item}, nil
	}
	folder, err := s.getFolderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if folder == nil {
		return nil, nil
	}
	return &ObjectRow{Folder: folder}, nil
}

func staticContainer(id string) *FolderNode {
	switch id {
	case objectid.Root:
		return &FolderNode{ObjectID: objectid.Root, ParentID: "-1", DisplayTitle: "root"}
	case objectid.VideoContainer:
		return &FolderNode{ObjectID: objectid.VideoContainer, ParentID: objectid.Root, DisplayTitle: "Video"}
	case objectid.AudioContainer:
		return &FolderNode{ObjectID: objectid.AudioContainer, ParentID: objectid.Root, DisplayTitle: "Audio"}
	case objectid.ImageContainer:
		return &FolderNode{ObjectID: objectid.ImageContainer, ParentID: objectid.Root, DisplayTitle: "Image"}
	case objectid.FolderContainer:
		return &FolderNode{ObjectID: objectid.FolderContainer, ParentID: objectid.Root, DisplayTitle: "By Folder"}
	}
	return nil
}

func (s *Store) getItemByID(ctx context.Context, id string) (*MediaItem, error) {
	row := s.db.QueryRowContext(ctx, itemSelectColumns+` WHERE object_id = ?`, id)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return item, err
}

func (s *Store) getFolderByID(ctx context.Context, id string) (*FolderNode, error) {
	row := s.db.QueryRowContext(ctx, `SELECT object_id, parent_id, absolute_path, display_title FROM folders WHERE object_id = ?`, id)
	var f FolderNode
	if err := row.Scan(&f.ObjectID, &f.ParentID, &f.AbsolutePath, &f.DisplayTitle); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &f, nil
}

const itemSelectColumns = `SELECT object_id, parent_folder_id, absolute_path, display_title, size_bytes, mtime, mime_type, media_class, duration_seconds, resolution, created_at, updated_at FROM media_items`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*MediaItem, error) {
	var it MediaItem
	var class int
	if err := row.Scan(&it.ObjectID, &it.ParentFolderID, &it.AbsolutePath, &it.DisplayTitle,
		&it.SizeBytes, &it.Mtime, &it.MimeType, &class, &it.DurationSeconds, &it.Resolution,
		&it.CreatedAt, &it.UpdatedAt); err != nil {
		return nil, err
	}
	it.MediaClass = mimetable.Class(class)
	return &it, nil
}

// ListChildren pages the direct children of parentID (spec §4.2).
func (s *Store) ListChildren(ctx context.Context, parentID string, offset, limit int, sort []SortCriterion) (Page, error) {
	suid, err := s.SystemUpdateID(ctx)
	if err != nil {
		return Page{}, err
	}
	switch parentID {
	case objectid.Root:
		return Page{Folders: rootFolders(), TotalMatches: 4, SystemUpdateID: suid}, nil
	case objectid.VideoContainer:
		return s.listByClass(ctx, mimetable.ClassVideo, offset, limit, sort, suid)
	case objectid.AudioContainer:
		return s.listByClass(ctx, mimetable.ClassAudio, offset, limit, sort, suid)
	case objectid.ImageContainer:
		return s.listByClass(ctx, mimetable.ClassImage, offset, limit, sort, suid)
	}
	if objectid.IsItem(parentID) {
		return Page{}, ErrNotAContainer
	}
	return s.listFolderChildren(ctx, parentID, offset, limit, sort, suid)
}

func rootFolders() []FolderNode {
	return []FolderNode{
		{ObjectID: objectid.VideoContainer, ParentID: objectid.Root, DisplayTitle: "Video"},
		{ObjectID: objectid.AudioContainer, ParentID: objectid.Root, DisplayTitle: "Audio"},
		{ObjectID: objectid.ImageContainer, ParentID: objectid.Root, DisplayTitle: "Image"},
		{ObjectID: objectid.FolderContainer, ParentID: objectid.Root, DisplayTitle: "By Folder"},
	}
}

func (s *Store) listByClass(ctx context.Context, class mimetable.Class, offset, limit int, crit []SortCriterion, suid uint32) (Page, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM media_items WHERE media_class = ?`, int(class)).Scan(&total); err != nil {
		return Page{}, err
	}
	rows, err := s.db.QueryContext(ctx, itemSelectColumns+` WHERE media_class = ? `+orderByClause(crit, true), int(class))
	if err != nil {
		return Page{}, err
	}
	defer rows.Close()
	items, err := scanItemsWindowed(rows, offset, limit)
	if err != nil {
		return Page{}, err
	}
	return Page{Items: items, TotalMatches: total, SystemUpdateID: suid}, nil
}

func (s *Store) listFolderChildren(ctx context.Context, parentID string, offset, limit int, crit []SortCriterion, suid uint32) (Page, error) {
	var folders []FolderNode
	frows, err := s.db.QueryContext(ctx, `SELECT object_id, parent_id, absolute_path, display_title FROM folders WHERE parent_id = ? ORDER BY display_title`, parentID)
	if err != nil {
		return Page{}, err
	}
	for frows.Next() {
		var f FolderNode
		if err := frows.Scan(&f.ObjectID, &f.ParentID, &f.AbsolutePath, &f.DisplayTitle); err != nil {
			frows.Close()
			return Page{}, err
		}
		folders = append(folders, f)
	}
	frows.Close()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM media_items WHERE parent_folder_id = ?`, parentID).Scan(&total); err != nil {
		return Page{}, err
	}
	total += len(folders)

	irows, err := s.db.QueryContext(ctx, itemSelectColumns+` WHERE parent_folder_id = ? `+orderByClause(crit, false), parentID)
	if err != nil {
		return Page{}, err
	}
	defer irows.Close()
	items, err := scanAllItems(irows)
	if err != nil {
		return Page{}, err
	}

	folders, items = windowFoldersThenItems(folders, items, offset, limit)
	return Page{Folders: folders, Items: items, TotalMatches: total, SystemUpdateID: suid}, nil
}

// windowFoldersThenItems applies StartingIndex/RequestedCount across a
// combined [folders..., items...] sequence, since DIDL containers list
// folders before items by convention.
func windowFoldersThenItems(folders []FolderNode, items []MediaItem, offset, limit int) ([]FolderNode, []MediaItem) {
	total := len(folders) + len(items)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return nil, nil
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	var outFolders []FolderNode
	var outItems []MediaItem
	for i := offset; i < end; i++ {
		if i < len(folders) {
			outFolders = append(outFolders, folders[i])
		} else {
			outItems = append(outItems, items[i-len(folders)])
		}
	}
	return outFolders, outItems
}

func scanAllItems(rows *sql.Rows) ([]MediaItem, error) {
	var items []MediaItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

func scanItemsWindowed(rows *sql.Rows, offset, limit int) ([]MediaItem, error) {
	all, err := scanAllItems(rows)
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return nil, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], nil
}

// orderByClause renders accepted SortCriteria tokens (spec §4.6.2); any
// token naming an unsupported field is dropped, and an empty/fully-dropped
// criteria list falls back to +dc:title for both containers and items.
func orderByClause(crit []SortCriterion, byClass bool) string {
	cols := make([]string, 0, len(crit))
	for _, c := range crit {
		col, ok := sortColumn(c.Field)
		if !ok {
			continue
		}
		if c.Descending {
			col += " DESC"
		}
		cols = append(cols, col)
	}
	if len(cols) == 0 {
		cols = []string{"display_title ASC"}
	}
	return "ORDER BY " + strings.Join(cols, ", ")
}

func sortColumn(field string) (string, bool) {
	switch field {
	case "dc:title":
		return "display_title", true
	case "dc:date":
		return "mtime", true
	case "upnp:class":
		return "media_class", true
	}
	return "", false
}

// ParseSortCriteria parses the comma-separated +field/-field grammar from
// spec §4.6.2.
func ParseSortCriteria(s string) []SortCriterion {
	if s == "" {
		return nil
	}
	var out []SortCriterion
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		desc := false
		switch tok[0] {
		case '-':
			desc = true
			tok = tok[1:]
		case '+':
			tok = tok[1:]
		}
		out = append(out, SortCriterion{Field: tok, Descending: desc})
	}
	return out
}

// Search implements the supported SearchCriteria subset (spec §4.6.2).
func (s *Store) Search(ctx context.Context, containerID string, pred SearchPredicate, offset, limit int) (Page, error) {
	suid, err := s.SystemUpdateID(ctx)
	if err != nil {
		return Page{}, err
	}
	class, ok := classFromDerivedFrom(pred.ClassDerivedFrom)
	if !ok {
		return Page{}, ErrUnsupportedPredicate
	}
	query := itemSelectColumns + ` WHERE media_class = ?`
	args := []any{int(class)}
	if pred.TitleContains != "" {
		query += ` AND display_title LIKE ?`
		args = append(args, "%"+pred.TitleContains+"%")
	}
	countQuery := strings.Replace(query, itemSelectColumns, `SELECT COUNT(*) FROM media_items`, 1)
	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return Page{}, err
	}
	query += " ORDER BY display_title ASC"
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Page{}, err
	}
	defer rows.Close()
	items, err := scanItemsWindowed(rows, offset, limit)
	if err != nil {
		return Page{}, err
	}
	return Page{Items: items, TotalMatches: total, SystemUpdateID: suid}, nil
}

func classFromDerivedFrom(s string) (mimetable.Class, bool) {
	switch s {
	case "object.item.videoItem":
		return mimetable.ClassVideo, true
	case "object.item.audioItem":
		return mimetable.ClassAudio, true
	case "object.item.imageItem":
		return mimetable.ClassImage, true
	case "":
		return 0, false
	}
	return 0, false
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
