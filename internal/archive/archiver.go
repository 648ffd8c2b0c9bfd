// Package archive records what the sync engine sees into the local store.
package archive

import (
	"context"
	"fmt"

	"github.com/lostfound/chatsync/internal/bus"
	"github.com/lostfound/chatsync/internal/chat"
	"github.com/lostfound/chatsync/internal/store"
	intsync "github.com/lostfound/chatsync/internal/sync"
	"go.uber.org/zap"
)

// Archiver handles idempotent ingestion of engine events into the store.
// It subscribes to "chat." and "rooms." events on the bus.
type Archiver struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a new archiver.
func New(db *store.DB, b *bus.Bus, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{
		db:     db,
		bus:    b,
		logger: logger.Named("archive"),
	}
}

// Start subscribes to engine events on the bus.
func (a *Archiver) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	a.done = make(chan struct{})
	chatCh, unsubChat := a.bus.Subscribe("chat.", 256)
	roomCh, unsubRooms := a.bus.Subscribe("rooms.", 16)

	go func() {
		defer close(a.done)
		defer unsubChat()
		defer unsubRooms()
		for {
			select {
			case evt := <-chatCh:
				a.handleEvent(evt)
			case evt := <-roomCh:
				a.handleEvent(evt)
			case <-ctx.Done():
				a.drain(chatCh, roomCh)
				return
			}
		}
	}()
}

// drain archives events already buffered when the archiver stops.
func (a *Archiver) drain(chs ...<-chan bus.Event) {
	for _, ch := range chs {
		for len(ch) > 0 {
			a.handleEvent(<-ch)
		}
	}
}

// Stop stops the archiver, archives what is already buffered and waits for
// the event loop to exit.
func (a *Archiver) Stop() {
	if a.cancel != nil {
		a.cancel()
		<-a.done
	}
}

func (a *Archiver) handleEvent(evt bus.Event) {
	var err error
	switch p := evt.Payload.(type) {
	case intsync.Batch:
		err = a.IngestBatch(p)
	case intsync.SendAck:
		err = a.IngestAck(p)
	case intsync.SendFailure:
		err = a.db.MarkOutboxFailed(p.ClientID, errString(p.Err))
	case chat.Message:
		if evt.Kind == bus.KindSendQueued {
			err = a.db.QueueOutbox(p.ID, p.RoomID, p.Body, attachmentName(p))
		}
	case []chat.Room:
		err = a.IngestRooms(p)
	}
	if err != nil {
		a.logger.Error("failed to archive event", zap.String("kind", evt.Kind), zap.Error(err))
	}
}

// IngestBatch stores a history or poll batch and advances the room cursor.
func (a *Archiver) IngestBatch(b intsync.Batch) error {
	if err := a.db.UpsertRoom(ptr(store.RoomFromChat(b.Room))); err != nil {
		return fmt.Errorf("upsert room: %w", err)
	}
	msgs := make([]store.Message, 0, len(b.Messages))
	for _, m := range b.Messages {
		msgs = append(msgs, store.MessageFromChat(m))
	}
	if err := a.db.UpsertMessages(msgs); err != nil {
		return err
	}
	if err := a.db.SetCursor(b.Room.ID, b.Cursor); err != nil {
		return fmt.Errorf("set cursor: %w", err)
	}
	if len(msgs) > 0 {
		a.logger.Debug("batch archived", zap.String("room_id", b.Room.ID), zap.Int("messages", len(msgs)))
		a.bus.Emit(bus.KindArchived, Stored{RoomID: b.Room.ID, Messages: len(msgs)})
	}
	return nil
}

// IngestAck stores a confirmed send and closes its journal entry.
func (a *Archiver) IngestAck(ack intsync.SendAck) error {
	m := store.MessageFromChat(ack.Message)
	if err := a.db.UpsertMessage(&m); err != nil {
		return err
	}
	if err := a.db.MarkOutboxSent(ack.ClientID, ack.Message.ID); err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	a.bus.Emit(bus.KindArchived, Stored{RoomID: m.RoomID, Messages: 1})
	return nil
}

// IngestRooms stores a fetched room list.
func (a *Archiver) IngestRooms(rooms []chat.Room) error {
	for _, r := range rooms {
		if err := a.db.UpsertRoom(ptr(store.RoomFromChat(r))); err != nil {
			return fmt.Errorf("upsert room %s: %w", r.ID, err)
		}
	}
	return nil
}

// Stored is the payload of archive.stored events.
type Stored struct {
	RoomID   string
	Messages int
}

func ptr[T any](v T) *T { return &v }

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func attachmentName(m chat.Message) string {
	if m.Attachment == nil {
		return ""
	}
	return m.Attachment.FileName
}
