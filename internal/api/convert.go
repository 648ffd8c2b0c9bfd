package api

import (
	"github.com/lostfound/chatsync/internal/chat"
	"github.com/lostfound/chatsync/internal/store"
	intsync "github.com/lostfound/chatsync/internal/sync"
	"google.golang.org/protobuf/types/known/structpb"
)

func messageToValue(m chat.Message) map[string]any {
	v := map[string]any{
		"id":             m.ID,
		"room_id":        m.RoomID,
		"sender_email":   m.SenderEmail,
		"receiver_email": m.ReceiverEmail,
		"body":           m.Body,
		"timestamp":      m.Timestamp,
		"state":          m.State.String(),
	}
	if a := m.Attachment; a != nil {
		v["attachment"] = map[string]any{
			"url":          a.URL,
			"file_name":    a.FileName,
			"size_bytes":   a.SizeBytes,
			"content_type": a.ContentType,
		}
	}
	return v
}

func messagesToValue(msgs []chat.Message) []any {
	out := make([]any, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageToValue(m))
	}
	return out
}

func roomToValue(r chat.Room) map[string]any {
	return map[string]any{
		"id":            r.ID,
		"partner_email": r.PartnerEmail,
		"partner_name":  r.PartnerName,
		"status":        r.Status,
		"display_name":  r.DisplayName(),
	}
}

func archivedRoomToValue(r store.Room) map[string]any {
	v := roomToValue(r.Chat())
	v["last_message_at"] = r.LastMessageAt
	v["last_message_preview"] = r.LastMessagePreview
	return v
}

func snapshotToValue(s *intsync.Snapshot) map[string]any {
	v := map[string]any{
		"state":    string(s.State),
		"cursor":   s.Cursor,
		"polling":  s.Polling,
		"sending":  s.Sending,
		"messages": len(s.Messages),
	}
	if s.Room != nil {
		v["room"] = roomToValue(*s.Room)
	}
	if s.Draft != "" {
		v["draft"] = s.Draft
	}
	if s.Err != nil {
		v["error"] = s.Err.Error()
	}
	return v
}

// Message decodes a message returned by ListMessages or SearchMessages.
func Message(s *structpb.Struct) chat.Message {
	f := s.GetFields()
	m := chat.Message{
		ID:            f["id"].GetStringValue(),
		RoomID:        f["room_id"].GetStringValue(),
		SenderEmail:   f["sender_email"].GetStringValue(),
		ReceiverEmail: f["receiver_email"].GetStringValue(),
		Body:          f["body"].GetStringValue(),
		Timestamp:     int64(f["timestamp"].GetNumberValue()),
	}
	switch f["state"].GetStringValue() {
	case chat.Pending.String():
		m.State = chat.Pending
	case chat.Failed.String():
		m.State = chat.Failed
	default:
		m.State = chat.Sent
	}
	if a := f["attachment"].GetStructValue(); a != nil {
		af := a.GetFields()
		m.Attachment = &chat.Attachment{
			URL:         af["url"].GetStringValue(),
			FileName:    af["file_name"].GetStringValue(),
			SizeBytes:   int64(af["size_bytes"].GetNumberValue()),
			ContentType: af["content_type"].GetStringValue(),
		}
	}
	return m
}

// Room decodes a room returned by ListRooms or GetStatus.
func Room(s *structpb.Struct) chat.Room {
	f := s.GetFields()
	return chat.Room{
		ID:           f["id"].GetStringValue(),
		PartnerEmail: f["partner_email"].GetStringValue(),
		PartnerName:  f["partner_name"].GetStringValue(),
		Status:       f["status"].GetStringValue(),
	}
}

// List returns the struct elements of the list field key.
func List(s *structpb.Struct, key string) []*structpb.Struct {
	vals := s.GetFields()[key].GetListValue().GetValues()
	out := make([]*structpb.Struct, 0, len(vals))
	for _, v := range vals {
		if st := v.GetStructValue(); st != nil {
			out = append(out, st)
		}
	}
	return out
}

func stringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func intField(s *structpb.Struct, key string) int64 {
	return int64(s.GetFields()[key].GetNumberValue())
}
