package store

import (
	"database/sql"
	"strconv"
	"time"
)

// KeyLastRoom holds the room that was open when the profile last stopped.
const KeyLastRoom = "last_room"

// SetState updates a sync checkpoint value.
func (db *DB) SetState(key, value string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now)
	return err
}

// State retrieves a sync checkpoint value. A missing key yields "" and no error.
func (db *DB) State(key string) (string, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func cursorKey(roomID string) string { return "cursor:" + roomID }

// SetCursor records the newest timestamp seen for a room. The stored cursor
// never moves backwards.
func (db *DB) SetCursor(roomID string, ts int64) error {
	cur, err := db.Cursor(roomID)
	if err != nil {
		return err
	}
	if ts <= cur {
		return nil
	}
	return db.SetState(cursorKey(roomID), strconv.FormatInt(ts, 10))
}

// Cursor returns the recorded cursor for a room, or 0.
func (db *DB) Cursor(roomID string) (int64, error) {
	v, err := db.State(cursorKey(roomID))
	if err != nil || v == "" {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}
