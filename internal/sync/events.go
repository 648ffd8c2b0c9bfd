package sync

import "github.com/lostfound/chatsync/internal/chat"

// Batch is the payload of chat.history_loaded and chat.merged events.
// Messages holds the entries that were new to the list and confirmed sends
// that moved to their server timestamp.
type Batch struct {
	Room     chat.Room
	Messages []chat.Message
	Cursor   int64
}

// LoadFailure is the payload of chat.load_failed events.
type LoadFailure struct {
	Room chat.Room
	Err  error
}

// SendAck is the payload of chat.send_ack events. ClientID is the local id
// the message carried while it was pending.
type SendAck struct {
	ClientID string
	Message  chat.Message
}

// SendFailure is the payload of chat.send_failed and chat.upload_failed events.
type SendFailure struct {
	ClientID string
	RoomID   string
	Draft    string
	FileName string
	Err      error
}
