package store

import (
	"database/sql"
	"time"
)

// UpsertRoom inserts or updates a room. The last-message columns are kept
// on conflict; they are maintained by UpsertMessages.
func (db *DB) UpsertRoom(r *Room) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO rooms (room_id, partner_email, partner_name, status, last_message_at, last_message_preview, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(room_id) DO UPDATE SET
			partner_email = excluded.partner_email,
			partner_name = COALESCE(NULLIF(excluded.partner_name, ''), rooms.partner_name),
			status = excluded.status,
			updated_at = excluded.updated_at`,
		r.ID, r.PartnerEmail, r.PartnerName, r.Status, r.LastMessageAt, r.LastMessagePreview, now)
	return err
}

// ListRooms returns rooms with the most recent activity first.
func (db *DB) ListRooms(limit, offset int) ([]Room, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT room_id, partner_email, partner_name, status, last_message_at, last_message_preview
		FROM rooms
		ORDER BY last_message_at DESC, partner_name ASC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var rooms []Room
	for rows.Next() {
		var r Room
		if err := rows.Scan(&r.ID, &r.PartnerEmail, &r.PartnerName, &r.Status, &r.LastMessageAt, &r.LastMessagePreview); err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

// GetRoom returns a room by ID, or nil if it is not archived.
func (db *DB) GetRoom(id string) (*Room, error) {
	var r Room
	err := db.QueryRow(`
		SELECT room_id, partner_email, partner_name, status, last_message_at, last_message_preview
		FROM rooms WHERE room_id = ?`, id).
		Scan(&r.ID, &r.PartnerEmail, &r.PartnerName, &r.Status, &r.LastMessageAt, &r.LastMessagePreview)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
