// Package snapshot persists a built search index to SQLite so a server can
// answer queries before the locales have been fetched again.
package snapshot

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// schema drops and recreates all tables. A snapshot is rewritten from
// scratch on each publish so there is no need for migrations.
const schema = `
DROP TABLE IF EXISTS entries;
DROP TABLE IF EXISTS meta;

CREATE TABLE entries (
	key TEXT PRIMARY KEY,
	text TEXT NOT NULL
);

CREATE TABLE meta (
	name TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const (
	metaLanguages = "languages"
	metaBuiltAt   = "built_at"
)

func openDB(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	return db, nil
}
