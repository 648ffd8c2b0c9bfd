package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/lostfound/chatsync/internal/chat"
	"go.uber.org/zap"
)

const (
	statusSuccess = "success"
	maxBodyBytes  = 8 << 20

	// DefaultUploadCategory is the FileStore category used for chat attachments.
	DefaultUploadCategory = "chat-attachments"
)

// Config configures the backend client.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	CursorUnit     Unit
	UploadCategory string
	HTTPClient     *http.Client
}

// Client talks to the lost-and-found REST backend. It implements the
// MessageStore and FileStore contracts used by the sync engine.
type Client struct {
	base     *url.URL
	http     *http.Client
	unit     Unit
	category string
	logger   *zap.Logger
}

// New creates a client for the backend at cfg.BaseURL.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", cfg.BaseURL)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	unit := cfg.CursorUnit
	if unit == "" {
		unit = Milliseconds
	}
	category := cfg.UploadCategory
	if category == "" {
		category = DefaultUploadCategory
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{base: base, http: hc, unit: unit, category: category, logger: logger}, nil
}

func (c *Client) endpoint(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return c.base.String() + "/" + strings.Join(escaped, "/")
}

// History fetches the full message history of a room, ascending by timestamp.
func (c *Client) History(ctx context.Context, roomID string) ([]chat.Message, error) {
	var out messagesResponse
	if err := c.get(ctx, "history", c.endpoint("rooms", roomID, "messages"), &out); err != nil {
		return nil, err
	}
	return c.toMessages(roomID, out.Messages), nil
}

// Since fetches the messages of a room whose timestamp is after cursorMs.
func (c *Client) Since(ctx context.Context, roomID string, cursorMs int64) ([]chat.Message, error) {
	u := c.endpoint("rooms", roomID, "messages", "since", FormatCursor(cursorMs, c.unit))
	var out messagesResponse
	if err := c.get(ctx, "since", u, &out); err != nil {
		return nil, err
	}
	return c.toMessages(roomID, out.Messages), nil
}

// toMessages decodes each entry on its own and skips the ones that cannot
// be read, so a single bad record cannot stall the cursor of a room.
func (c *Client) toMessages(roomID string, in []json.RawMessage) []chat.Message {
	msgs := make([]chat.Message, 0, len(in))
	for i, raw := range in {
		var w wireMessage
		if err := json.Unmarshal(raw, &w); err != nil {
			c.logger.Warn("skipping unreadable message",
				zap.String("room_id", roomID),
				zap.Int("index", i),
				zap.Error(err),
			)
			continue
		}
		m := w.toMessage()
		if m.RoomID == "" {
			m.RoomID = roomID
		}
		msgs = append(msgs, m)
	}
	return msgs
}

// Persist stores a new message and returns its server-assigned ID.
func (c *Client) Persist(ctx context.Context, msg chat.Outgoing) (chat.Receipt, error) {
	body := persistRequest{
		RoomID:        msg.RoomID,
		SenderEmail:   msg.SenderEmail,
		ReceiverEmail: msg.ReceiverEmail,
		Message:       msg.Body,
	}
	if a := msg.Attachment; a != nil {
		body.FileURL = a.URL
		body.FileName = a.FileName
		body.FileSize = a.SizeBytes
		body.ContentType = a.ContentType
	}
	var out persistResponse
	if err := c.postJSON(ctx, "persist", c.endpoint("messages"), body, &out, true); err != nil {
		return chat.Receipt{}, err
	}
	if out.MessageID == "" {
		return chat.Receipt{}, Application("persist", out.Status, "response has no messageId")
	}
	return chat.Receipt{MessageID: string(out.MessageID), Timestamp: int64(out.Timestamp)}, nil
}

// Upload sends file bytes to the FileStore and returns the durable URL.
func (c *Client) Upload(ctx context.Context, f chat.Upload, uploadedBy string) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, f.FileName))
	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(f.Data); err != nil {
		return "", fmt.Errorf("write file part: %w", err)
	}
	if err := w.WriteField("uploadedBy", uploadedBy); err != nil {
		return "", fmt.Errorf("write uploadedBy: %w", err)
	}
	if err := w.WriteField("category", c.category); err != nil {
		return "", fmt.Errorf("write category: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("files"), &buf)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var out uploadResponse
	if err := c.do(req, "upload", &out, true); err != nil {
		return "", err
	}
	if out.FileURL == "" {
		return "", Application("upload", out.Status, "response has no fileUrl")
	}
	return out.FileURL, nil
}

// ListRooms returns the chat partners of the given user.
func (c *Client) ListRooms(ctx context.Context, email string) ([]chat.Room, error) {
	var out roomsResponse
	if err := c.get(ctx, "rooms", c.endpoint("users", email, "rooms"), &out); err != nil {
		return nil, err
	}
	rooms := make([]chat.Room, 0, len(out.ChatPartners))
	for _, r := range out.ChatPartners {
		rooms = append(rooms, chat.Room{
			ID:           r.RoomID,
			PartnerEmail: r.PartnerEmail,
			PartnerName:  r.PartnerName,
			Status:       r.Status,
		})
	}
	return rooms, nil
}

// Login authenticates with email and password and returns the session identity.
func (c *Client) Login(ctx context.Context, email, password string) (chat.Session, error) {
	var out loginResponse
	if err := c.postJSON(ctx, "login", c.endpoint("auth", "login"), loginRequest{Email: email, Password: password}, &out, false); err != nil {
		return chat.Session{}, err
	}
	u := out.User
	if u.Email == "" {
		return chat.Session{}, Application("login", out.Status, "response has no user")
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = "User"
	}
	return chat.Session{
		UserID: firstID(u.MongoID, u.ID),
		Email:  u.Email,
		Name:   name,
	}, nil
}

func (c *Client) get(ctx context.Context, op, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, op, out, true)
}

func (c *Client) postJSON(ctx context.Context, op, u string, body, out any, requireSuccess bool) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.do(req, op, out, requireSuccess)
}

// do executes req and decodes the JSON body into out. Non-2xx responses are
// transport failures; a status discriminator other than "success" is an
// application failure when requireSuccess is set.
func (c *Client) do(req *http.Request, op string, out any, requireSuccess bool) error {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return Transport(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Transport(op, fmt.Errorf("read body: %w", err))
	}
	c.logger.Debug("backend call",
		zap.String("op", op),
		zap.String("method", req.Method),
		zap.String("url", req.URL.Redacted()),
		zap.Int("http_status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	var env envelope
	_ = json.Unmarshal(body, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return HTTPFailure(op, resp.StatusCode, env.Status, msg)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return Malformed(op, err)
	}
	if requireSuccess && env.Status != statusSuccess {
		return Application(op, env.Status, env.Message)
	}
	return nil
}
