package store

import "time"

// Outbox statuses.
const (
	OutboxQueued = "queued"
	OutboxSent   = "sent"
	OutboxFailed = "failed"
)

// QueueOutbox journals a send that has just been queued.
func (db *DB) QueueOutbox(clientMsgID, roomID, body, fileName string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO outbox (client_msg_id, room_id, body, file_name, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'queued', ?, ?)
		ON CONFLICT(client_msg_id) DO NOTHING`,
		clientMsgID, roomID, body, fileName, now, now)
	return err
}

// MarkOutboxSent updates an outbox entry to 'sent' with the server message ID.
func (db *DB) MarkOutboxSent(clientMsgID, serverMsgID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = 'sent', server_msg_id = ?, error_message = '', updated_at = ? WHERE client_msg_id = ?`, serverMsgID, now, clientMsgID)
	return err
}

// MarkOutboxFailed updates an outbox entry to 'failed' with an error message.
func (db *DB) MarkOutboxFailed(clientMsgID, errMsg string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = 'failed', error_message = ?, updated_at = ? WHERE client_msg_id = ?`, errMsg, now, clientMsgID)
	return err
}

// FailQueuedOutbox marks entries still queued that were created before the
// given Unix ms time as failed, and returns how many it changed.
func (db *DB) FailQueuedOutbox(before int64, errMsg string) (int64, error) {
	now := time.Now().UnixMilli()
	res, err := db.Exec(`UPDATE outbox SET status = 'failed', error_message = ?, updated_at = ? WHERE status = 'queued' AND created_at < ?`, errMsg, now, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListOutbox returns journaled sends, newest first. An empty status lists
// every entry.
func (db *DB) ListOutbox(status string, limit int) ([]OutboxEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, client_msg_id, room_id, body, file_name, status, error_message, server_msg_id, created_at
		FROM outbox
		WHERE ? = '' OR status = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, status, status, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.ID, &e.ClientMsgID, &e.RoomID, &e.Body, &e.FileName, &e.Status, &e.ErrorMessage, &e.ServerMsgID, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
