package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/lostfound/chatsync/internal/chat"
)

// secondsCutoff separates epoch seconds from epoch milliseconds. 1e11 seconds
// is in the year 5138; 1e11 milliseconds is in 1973.
const secondsCutoff = 1e11

// Unit is the time unit the backend expects in the "since" cursor.
type Unit string

const (
	Milliseconds Unit = "ms"
	Seconds      Unit = "s"
)

// FormatCursor renders a millisecond cursor in the given unit.
func FormatCursor(cursorMs int64, unit Unit) string {
	if unit == Seconds {
		return strconv.FormatInt(cursorMs/1000, 10)
	}
	return strconv.FormatInt(cursorMs, 10)
}

// wireTime decodes the timestamp shapes the backend has used into Unix
// milliseconds: JSON numbers or numeric strings in seconds or milliseconds,
// RFC 3339 strings, and [seconds, fraction] tuples.
type wireTime int64

func (t *wireTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*t = 0
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		return t.parseString(s)
	case '[':
		var parts []float64
		if err := json.Unmarshal(data, &parts); err != nil {
			return fmt.Errorf("timestamp tuple: %w", err)
		}
		if len(parts) == 0 {
			*t = 0
			return nil
		}
		ms := math.Round(parts[0] * 1000)
		if len(parts) > 1 {
			ms += math.Round(parts[1] * 1000)
		}
		*t = wireTime(ms)
		return nil
	default:
		v, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("timestamp number: %w", err)
		}
		*t = wireTime(normalize(v))
		return nil
	}
}

func (t *wireTime) parseString(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*t = 0
		return nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		*t = wireTime(normalize(v))
		return nil
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("timestamp %q: %w", s, err)
	}
	*t = wireTime(ts.UnixMilli())
	return nil
}

func normalize(v float64) int64 {
	if v < secondsCutoff {
		return int64(math.Round(v * 1000))
	}
	return int64(v)
}

// wireID accepts a plain string or a Mongo-style {"$oid": "..."} object.
type wireID string

func (id *wireID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '{' {
		var obj struct {
			OID string `json:"$oid"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		*id = wireID(obj.OID)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*id = wireID(s)
	return nil
}

type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type wireMessage struct {
	MessageID     wireID   `json:"messageId"`
	MongoID       wireID   `json:"_id"`
	ID            wireID   `json:"id"`
	RoomID        string   `json:"roomId"`
	SenderEmail   string   `json:"senderEmail"`
	ReceiverEmail string   `json:"receiverEmail"`
	Message       string   `json:"message"`
	Timestamp     wireTime `json:"timestamp"`
	FileURL       string   `json:"fileUrl"`
	FileName      string   `json:"fileName"`
	FileSize      int64    `json:"fileSize"`
	ContentType   string   `json:"contentType"`
}

func firstID(ids ...wireID) string {
	for _, id := range ids {
		if id != "" {
			return string(id)
		}
	}
	return ""
}

func (w wireMessage) toMessage() chat.Message {
	m := chat.Message{
		ID:            firstID(w.MessageID, w.MongoID, w.ID),
		RoomID:        w.RoomID,
		SenderEmail:   w.SenderEmail,
		ReceiverEmail: w.ReceiverEmail,
		Body:          w.Message,
		Timestamp:     int64(w.Timestamp),
		State:         chat.Sent,
	}
	if w.FileURL != "" {
		m.Attachment = &chat.Attachment{
			URL:         w.FileURL,
			FileName:    w.FileName,
			SizeBytes:   w.FileSize,
			ContentType: w.ContentType,
		}
	}
	return m
}

// messagesResponse keeps entries raw so that one bad message does not fail
// the whole page.
type messagesResponse struct {
	envelope
	Messages []json.RawMessage `json:"messages"`
}

type persistRequest struct {
	RoomID        string `json:"roomId"`
	SenderEmail   string `json:"senderEmail"`
	ReceiverEmail string `json:"receiverEmail"`
	Message       string `json:"message"`
	FileURL       string `json:"fileUrl,omitempty"`
	FileName      string `json:"fileName,omitempty"`
	FileSize      int64  `json:"fileSize,omitempty"`
	ContentType   string `json:"contentType,omitempty"`
}

type persistResponse struct {
	envelope
	MessageID wireID   `json:"messageId"`
	Timestamp wireTime `json:"timestamp"`
}

type uploadResponse struct {
	envelope
	FileURL string `json:"fileUrl"`
}

type wireRoom struct {
	RoomID       string `json:"roomId"`
	PartnerEmail string `json:"partnerEmail"`
	PartnerName  string `json:"partnerName"`
	Status       string `json:"status"`
}

type roomsResponse struct {
	envelope
	ChatPartners []wireRoom `json:"chatPartners"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	envelope
	User struct {
		MongoID   wireID `json:"_id"`
		ID        wireID `json:"id"`
		Email     string `json:"email"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	} `json:"user"`
}
