package chat

import (
	"strings"

	"github.com/google/uuid"
)

// LocalIDPrefix marks identifiers assigned by the client to optimistic messages.
// Server-assigned message IDs never carry it.
const LocalIDPrefix = "local:"

// DeliveryState is the local-only delivery status of a message.
type DeliveryState int

const (
	Pending DeliveryState = iota
	Sent
	Failed
)

func (s DeliveryState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Sent:
		return "sent"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Room is a conversation between the current user and one partner.
type Room struct {
	ID           string
	PartnerEmail string
	PartnerName  string
	Status       string
}

// DisplayName returns the partner's name, falling back to the email.
func (r Room) DisplayName() string {
	if r.PartnerName != "" {
		return r.PartnerName
	}
	if r.PartnerEmail != "" {
		return r.PartnerEmail
	}
	return r.ID
}

// Attachment describes a file referenced by a message.
type Attachment struct {
	URL         string
	FileName    string
	SizeBytes   int64
	ContentType string
}

// Message is a single chat entry. Timestamp is Unix milliseconds.
type Message struct {
	ID            string
	RoomID        string
	SenderEmail   string
	ReceiverEmail string
	Body          string
	Timestamp     int64
	Attachment    *Attachment
	State         DeliveryState

	// Seq is the arrival sequence number assigned by the sync engine.
	// It breaks ties between messages sharing a timestamp.
	Seq uint64
}

// IsLocal reports whether the message still holds a client-assigned ID.
func (m Message) IsLocal() bool {
	return strings.HasPrefix(m.ID, LocalIDPrefix)
}

// NewLocalID returns a fresh client-assigned message ID.
func NewLocalID() string {
	return LocalIDPrefix + uuid.New().String()
}

// Session is the authenticated identity of the current user.
type Session struct {
	UserID string
	Email  string
	Name   string
}

// Upload is a file selected by the user for sending.
type Upload struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Outgoing is the persist request for a new message.
type Outgoing struct {
	RoomID        string
	SenderEmail   string
	ReceiverEmail string
	Body          string
	Attachment    *Attachment
}

// Receipt is the MessageStore's confirmation of a persisted message.
// Timestamp is zero when the store did not report one.
type Receipt struct {
	MessageID string
	Timestamp int64
}
