package store

import "github.com/lostfound/chatsync/internal/chat"

// Room is an archived conversation.
type Room struct {
	ID                 string
	PartnerEmail       string
	PartnerName        string
	Status             string
	LastMessageAt      int64
	LastMessagePreview string
}

// Message is an archived, server-confirmed message.
type Message struct {
	ID            int64
	RoomID        string
	MsgID         string
	SenderEmail   string
	ReceiverEmail string
	Body          string
	FileURL       string
	FileName      string
	FileSize      int64
	ContentType   string
	Timestamp     int64
}

// OutboxEntry is one journaled send.
type OutboxEntry struct {
	ID           int64
	ClientMsgID  string
	RoomID       string
	Body         string
	FileName     string
	Status       string // queued, sent, failed
	ErrorMessage string
	ServerMsgID  string
	CreatedAt    int64
}

// SearchResult holds a message with a search snippet.
type SearchResult struct {
	Message Message
	Snippet string
}

// MessageFromChat converts an engine message for archiving.
func MessageFromChat(m chat.Message) Message {
	out := Message{
		RoomID:        m.RoomID,
		MsgID:         m.ID,
		SenderEmail:   m.SenderEmail,
		ReceiverEmail: m.ReceiverEmail,
		Body:          m.Body,
		Timestamp:     m.Timestamp,
	}
	if a := m.Attachment; a != nil {
		out.FileURL = a.URL
		out.FileName = a.FileName
		out.FileSize = a.SizeBytes
		out.ContentType = a.ContentType
	}
	return out
}

// Chat converts an archived message back to the engine's form.
func (m Message) Chat() chat.Message {
	out := chat.Message{
		ID:            m.MsgID,
		RoomID:        m.RoomID,
		SenderEmail:   m.SenderEmail,
		ReceiverEmail: m.ReceiverEmail,
		Body:          m.Body,
		Timestamp:     m.Timestamp,
		State:         chat.Sent,
	}
	if m.FileURL != "" || m.FileName != "" {
		out.Attachment = &chat.Attachment{
			URL:         m.FileURL,
			FileName:    m.FileName,
			SizeBytes:   m.FileSize,
			ContentType: m.ContentType,
		}
	}
	return out
}

// RoomFromChat converts an engine room for archiving.
func RoomFromChat(r chat.Room) Room {
	return Room{ID: r.ID, PartnerEmail: r.PartnerEmail, PartnerName: r.PartnerName, Status: r.Status}
}

// Chat converts an archived room back to the engine's form.
func (r Room) Chat() chat.Room {
	return chat.Room{ID: r.ID, PartnerEmail: r.PartnerEmail, PartnerName: r.PartnerName, Status: r.Status}
}

const previewLen = 100

// Preview returns the text shown for the message in room lists.
func (m Message) Preview() string {
	if m.Body == "" && m.FileName != "" {
		return "[file] " + m.FileName
	}
	r := []rune(m.Body)
	if len(r) > previewLen {
		return string(r[:previewLen])
	}
	return m.Body
}
