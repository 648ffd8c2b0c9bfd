package archive

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/lostfound/chatsync/internal/bus"
	"github.com/lostfound/chatsync/internal/chat"
	"github.com/lostfound/chatsync/internal/store"
	intsync "github.com/lostfound/chatsync/internal/sync"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

var room = chat.Room{ID: "r1", PartnerEmail: "ada@x.io", PartnerName: "Ada"}

func TestIngestBatch(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	a := New(db, b, nil)

	ch, unsub := b.Subscribe("archive.", 10)
	defer unsub()

	batch := intsync.Batch{
		Room: room,
		Messages: []chat.Message{
			{ID: "m1", RoomID: "r1", SenderEmail: "ada@x.io", Body: "one", Timestamp: 1000},
			{ID: "m2", RoomID: "r1", SenderEmail: "ada@x.io", Body: "two", Timestamp: 2000},
		},
		Cursor: 2000,
	}
	if err := a.IngestBatch(batch); err != nil {
		t.Fatal(err)
	}
	// Same batch again is idempotent.
	if err := a.IngestBatch(batch); err != nil {
		t.Fatal(err)
	}

	r, err := db.GetRoom("r1")
	if err != nil {
		t.Fatal(err)
	}
	if r == nil || r.PartnerName != "Ada" || r.LastMessagePreview != "two" {
		t.Errorf("room = %+v, want Ada with preview two", r)
	}
	msgs, err := db.ListMessages("r1", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if c, _ := db.Cursor("r1"); c != 2000 {
		t.Errorf("cursor = %d, want 2000", c)
	}

	select {
	case evt := <-ch:
		if s := evt.Payload.(Stored); s.RoomID != "r1" || s.Messages != 2 {
			t.Errorf("stored = %+v", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for archive.stored event")
	}
}

func TestSendJournal(t *testing.T) {
	db := testDB(t)
	a := New(db, bus.New(), nil)

	pending := chat.Message{ID: "local:1", RoomID: "r1", SenderEmail: "me@x.io", Body: "hi", State: chat.Pending}
	a.handleEvent(bus.Event{Kind: bus.KindSendQueued, Payload: pending})
	a.handleEvent(bus.Event{Kind: bus.KindSendQueued, Payload: chat.Message{ID: "local:2", RoomID: "r1", Body: "lost"}})

	confirmed := pending
	confirmed.ID = "srv1"
	confirmed.State = chat.Sent
	confirmed.Timestamp = 5000
	a.handleEvent(bus.Event{Kind: bus.KindSendAck, Payload: intsync.SendAck{ClientID: "local:1", Message: confirmed}})
	a.handleEvent(bus.Event{Kind: bus.KindSendFailed, Payload: intsync.SendFailure{ClientID: "local:2", RoomID: "r1", Err: errors.New("server down")}})

	sent, err := db.ListOutbox(store.OutboxSent, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(sent) != 1 || sent[0].ServerMsgID != "srv1" {
		t.Errorf("sent = %+v, want local:1 -> srv1", sent)
	}
	failed, err := db.ListOutbox(store.OutboxFailed, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 || failed[0].ErrorMessage != "server down" {
		t.Errorf("failed = %+v", failed)
	}

	msgs, err := db.ListMessages("r1", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].MsgID != "srv1" {
		t.Errorf("archived messages = %+v, want only srv1", msgs)
	}
}

func TestIngestRooms(t *testing.T) {
	db := testDB(t)
	a := New(db, bus.New(), nil)

	a.handleEvent(bus.Event{Kind: bus.KindRoomsListed, Payload: []chat.Room{
		room,
		{ID: "r2", PartnerEmail: "bob@x.io"},
	}})

	rooms, err := db.ListRooms(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rooms) != 2 {
		t.Errorf("got %d rooms, want 2", len(rooms))
	}
}

func TestArchiverFollowsBus(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	a := New(db, b, nil)
	a.Start(context.Background())
	defer a.Stop()

	stored, unsub := b.Subscribe(bus.KindArchived, 4)
	defer unsub()

	b.Emit(bus.KindMerged, intsync.Batch{
		Room:     room,
		Messages: []chat.Message{{ID: "m9", RoomID: "r1", Body: "from poll", Timestamp: 9000}},
		Cursor:   9000,
	})

	select {
	case <-stored:
	case <-time.After(2 * time.Second):
		t.Fatal("batch not archived")
	}
	msgs, err := db.ListMessages("r1", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Body != "from poll" {
		t.Errorf("messages = %+v", msgs)
	}
}
