// Package store is the SQLite archive behind the sync engine: rooms,
// confirmed messages, the send journal and per-room sync state.
package store

import (
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
)

// DB is an open archive.
type DB struct {
	*sql.DB
	path string
}

// dsn turns on WAL so the TUI can read while the archiver writes, and
// takes write locks at BEGIN so concurrent writers wait on busy_timeout
// instead of failing on lock upgrade.
func dsn(path string) string {
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_busy_timeout", "5000")
	q.Set("_foreign_keys", "on")
	q.Set("_txlock", "immediate")
	q.Set("_synchronous", "NORMAL")
	return "file:" + path + "?" + q.Encode()
}

// Open opens or creates the archive at path. Call Migrate before use.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	return &DB{DB: db, path: path}, nil
}

// Path returns the database file path.
func (db *DB) Path() string { return db.path }
