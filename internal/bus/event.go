package bus

import "time"

// Event kinds published by the sync engine and its collaborators.
// Subscribers filter by prefix, e.g. "chat." or "engine.".
const (
	KindStateChanged  = "engine.state_changed"
	KindHistoryLoaded = "chat.history_loaded"
	KindLoadFailed    = "chat.load_failed"
	KindMerged        = "chat.merged"
	KindSendQueued    = "chat.send_queued"
	KindSendAck       = "chat.send_ack"
	KindSendFailed    = "chat.send_failed"
	KindUploadFailed  = "chat.upload_failed"
	KindRoomsListed   = "rooms.listed"
	KindArchived      = "archive.stored"
	KindRecovered     = "archive.outbox_recovered"
)

// Event is a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
