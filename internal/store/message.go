package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertMessages archives a batch of confirmed messages in one transaction,
// idempotent on (room_id, msg_id). Each room's last-message columns move
// forward to the newest message seen.
func (db *DB) UpsertMessages(msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, m := range msgs {
		if _, err := tx.Exec(`
			INSERT INTO messages (room_id, msg_id, sender_email, receiver_email, body, file_url, file_name, file_size, content_type, timestamp, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(room_id, msg_id) DO UPDATE SET
				body = excluded.body,
				file_url = excluded.file_url,
				timestamp = excluded.timestamp`,
			m.RoomID, m.MsgID, m.SenderEmail, m.ReceiverEmail, m.Body,
			m.FileURL, m.FileName, m.FileSize, m.ContentType, m.Timestamp, now); err != nil {
			return fmt.Errorf("upsert message %s: %w", m.MsgID, err)
		}

		if _, err := tx.Exec(`
			INSERT INTO rooms (room_id, last_message_at, last_message_preview, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(room_id) DO UPDATE SET
				last_message_at = excluded.last_message_at,
				last_message_preview = excluded.last_message_preview,
				updated_at = excluded.updated_at
			WHERE excluded.last_message_at >= rooms.last_message_at`,
			m.RoomID, m.Timestamp, m.Preview(), now); err != nil {
			return fmt.Errorf("touch room %s: %w", m.RoomID, err)
		}
	}
	return tx.Commit()
}

// UpsertMessage archives a single message.
func (db *DB) UpsertMessage(m *Message) error {
	return db.UpsertMessages([]Message{*m})
}

// ListMessages returns a room's messages using keyset pagination by
// timestamp, newest first.
func (db *DB) ListMessages(roomID string, beforeTs int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT `+messageColumns+`
		FROM messages
		WHERE room_id = ? AND timestamp < ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, roomID, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// LatestTimestamp returns the newest archived timestamp in a room, or 0.
func (db *DB) LatestTimestamp(roomID string) (int64, error) {
	var ts int64
	err := db.QueryRow(`SELECT COALESCE(MAX(timestamp), 0) FROM messages WHERE room_id = ?`, roomID).Scan(&ts)
	return ts, err
}

const messageColumns = `id, room_id, msg_id, sender_email, receiver_email, body, file_url, file_name, file_size, content_type, timestamp`

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner) (Message, error) {
	var m Message
	err := s.Scan(&m.ID, &m.RoomID, &m.MsgID, &m.SenderEmail, &m.ReceiverEmail, &m.Body,
		&m.FileURL, &m.FileName, &m.FileSize, &m.ContentType, &m.Timestamp)
	return m, err
}

// GetMessage returns the archived message with the given server id, or nil.
func (db *DB) GetMessage(msgID string) (*Message, error) {
	row := db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE msg_id = ? ORDER BY id DESC LIMIT 1`, msgID)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// MessageCount returns the number of archived messages.
func (db *DB) MessageCount() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}
