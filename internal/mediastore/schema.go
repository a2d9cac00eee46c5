// schema.go - Database Schema Management
//
// Tables:
//   - folders: the "By Folder" tree, one row per physical directory that
//     currently has at least one indexed descendant.
//   - media_items: one row per indexed file.
//   - kv: a tiny key/value table, currently only holding system_update_id.
//
// Index Strategy:
//   - media_items(parent_folder_id): Browse(BrowseDirectChildren) on a folder
//   - media_items(media_class): Browse(BrowseDirectChildren) on 1/2/3
//   - media_items(absolute_path): delete_by_path, upsert lookups
//   - media_items(mtime): ORDER BY for dc:date SortCriteria
package mediastore

import (
	"context"
	"database/sql"
	"time"
)

func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func createSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS folders (
			object_id     TEXT PRIMARY KEY,
			parent_id     TEXT NOT NULL,
			absolute_path TEXT NOT NULL UNIQUE,
			display_title TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS media_items (
			object_id        TEXT PRIMARY KEY,
			parent_folder_id TEXT NOT NULL,
			absolute_path    TEXT NOT NULL UNIQUE,
			display_title    TEXT NOT NULL,
			size_bytes       INTEGER NOT NULL,
			mtime            INTEGER NOT NULL,
			mime_type        TEXT NOT NULL,
			media_class      INTEGER NOT NULL,
			duration_seconds REAL,
			resolution       TEXT,
			created_at       INTEGER NOT NULL,
			updated_at       INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_media_items_parent ON media_items(parent_folder_id)`,
		`CREATE INDEX IF NOT EXISTS idx_media_items_class ON media_items(media_class)`,
		`CREATE INDEX IF NOT EXISTS idx_media_items_path ON media_items(absolute_path)`,
		`CREATE INDEX IF NOT EXISTS idx_media_items_mtime ON media_items(mtime)`,
		`CREATE INDEX IF NOT EXISTS idx_folders_parent ON folders(parent_id)`,
		`CREATE TABLE IF NOT EXISTS kv (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`INSERT OR IGNORE INTO kv(key, value) VALUES ('system_update_id', '0')`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}
