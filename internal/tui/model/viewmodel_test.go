package model

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lostfound/chatsync/internal/bus"
	"github.com/lostfound/chatsync/internal/chat"
	"github.com/lostfound/chatsync/internal/store"
	intsync "github.com/lostfound/chatsync/internal/sync"
)

// fakeEngine records what the view model asks of it.
type fakeEngine struct {
	mu       sync.Mutex
	snap     intsync.Snapshot
	selected []*chat.Room
	texts    []string
	files    []chat.Upload
	draft    string
	accept   bool
}

func (f *fakeEngine) Self() chat.Session {
	return chat.Session{Email: "me@lostfound.io", Name: "Me"}
}

func (f *fakeEngine) Snapshot() *intsync.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.snap
	return &s
}

func (f *fakeEngine) Updates() <-chan struct{} { return nil }

func (f *fakeEngine) SelectRoom(room *chat.Room) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selected = append(f.selected, room)
}

func (f *fakeEngine) SendText(text string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return f.accept
}

func (f *fakeEngine) SendFile(up chat.Upload) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files = append(f.files, up)
	return f.accept
}

func (f *fakeEngine) TakeDraft() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.draft
	f.draft = ""
	return d
}

func (f *fakeEngine) PollNow() bool { return f.accept }

type fakeRooms struct {
	rooms []chat.Room
	err   error
}

func (f *fakeRooms) ListRooms(context.Context, string) ([]chat.Room, error) {
	return f.rooms, f.err
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

var (
	ada = chat.Room{ID: "r1", PartnerEmail: "ada@lostfound.io", PartnerName: "Ada"}
	bob = chat.Room{ID: "r2", PartnerEmail: "bob@lostfound.io", PartnerName: "Bob"}
)

func TestLoadRoomsMergesArchive(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertMessages([]store.Message{{RoomID: "r2", MsgID: "m1", Body: "still have my scarf?", Timestamp: 5000}}); err != nil {
		t.Fatal(err)
	}
	b := bus.New()
	listed, unsub := b.Subscribe(bus.KindRoomsListed, 1)
	defer unsub()

	vm := NewViewModel(&fakeEngine{}, db, &fakeRooms{rooms: []chat.Room{ada, bob}}, b, nil)
	if err := vm.LoadRooms(context.Background()); err != nil {
		t.Fatal(err)
	}

	rows := vm.Rooms()
	if len(rows) != 2 {
		t.Fatalf("got %d rooms, want 2", len(rows))
	}
	// Bob has activity, so he sorts first.
	if rows[0].ID != "r2" || rows[0].Preview != "still have my scarf?" {
		t.Errorf("rows[0] = %+v", rows[0])
	}
	if vm.Offline() {
		t.Error("Offline() = true after a successful fetch")
	}
	select {
	case <-listed:
	default:
		t.Error("rooms.listed not emitted")
	}
}

func TestLoadRoomsOffline(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertRoom(&store.Room{ID: "r1", PartnerEmail: ada.PartnerEmail, PartnerName: "Ada"}); err != nil {
		t.Fatal(err)
	}
	vm := NewViewModel(&fakeEngine{}, db, &fakeRooms{err: errors.New("dial tcp: refused")}, bus.New(), nil)

	if err := vm.LoadRooms(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !vm.Offline() {
		t.Error("Offline() = false, want true")
	}
	if rows := vm.Rooms(); len(rows) != 1 || rows[0].Room != ada {
		t.Errorf("rooms = %+v, want [Ada]", rows)
	}

	empty := NewViewModel(&fakeEngine{}, testDB(t), &fakeRooms{err: errors.New("down")}, bus.New(), nil)
	if err := empty.LoadRooms(context.Background()); err == nil {
		t.Error("LoadRooms() with no backend and empty archive should fail")
	}
}

func TestOpenRemembersRoom(t *testing.T) {
	db := testDB(t)
	eng := &fakeEngine{}
	vm := NewViewModel(eng, db, &fakeRooms{rooms: []chat.Room{ada, bob}}, bus.New(), nil)
	if err := vm.LoadRooms(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := vm.Open("r1"); err != nil {
		t.Fatal(err)
	}
	if len(eng.selected) != 1 || *eng.selected[0] != ada {
		t.Errorf("selected = %v, want [Ada]", eng.selected)
	}
	if got := vm.LastRoom(); got != "r1" {
		t.Errorf("LastRoom() = %q, want r1", got)
	}
	if err := vm.Open("nope"); err == nil {
		t.Error("Open(nope) should fail")
	}

	vm.Close()
	if last := eng.selected[len(eng.selected)-1]; last != nil {
		t.Errorf("Close() selected %v, want nil", last)
	}
}

func TestFindRoom(t *testing.T) {
	vm := NewViewModel(&fakeEngine{}, nil, &fakeRooms{rooms: []chat.Room{ada, bob}}, bus.New(), nil)
	if err := vm.LoadRooms(context.Background()); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		query string
		want  string
	}{
		{"bob", "r2"},
		{"ADA@", "r1"},
		{"r2", "r2"},
		{"carol", ""},
		{"  ", ""},
	}
	for _, tt := range tests {
		got, ok := vm.FindRoom(tt.query)
		if tt.want == "" {
			if ok {
				t.Errorf("FindRoom(%q) = %v, want none", tt.query, got.ID)
			}
			continue
		}
		if !ok || got.ID != tt.want {
			t.Errorf("FindRoom(%q) = %v, %v; want %s", tt.query, got.ID, ok, tt.want)
		}
	}
}

func TestSend(t *testing.T) {
	eng := &fakeEngine{}
	vm := NewViewModel(eng, nil, nil, bus.New(), nil)

	if err := vm.Send("   "); err != nil || len(eng.texts) != 0 {
		t.Errorf("blank send reached the engine: %v %v", err, eng.texts)
	}
	if err := vm.Send("hello"); err == nil {
		t.Error("Send() with no room should fail")
	}
	eng.accept = true
	if err := vm.Send("hello"); err != nil {
		t.Errorf("Send() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "keys.jpg")
	if err := os.WriteFile(path, []byte("\xff\xd8\xff\xe0jpeg"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := vm.SendFile(path); err != nil {
		t.Fatalf("SendFile() error = %v", err)
	}
	if len(eng.files) != 1 || eng.files[0].ContentType != "image/jpeg" {
		t.Errorf("files = %+v", eng.files)
	}
	if err := vm.SendFile(filepath.Join(t.TempDir(), "missing.jpg")); err == nil {
		t.Error("SendFile(missing) should fail")
	}
}

func TestFailuresBecomeFlashes(t *testing.T) {
	b := bus.New()
	vm := NewViewModel(&fakeEngine{}, nil, nil, b, nil)
	vm.Start(context.Background())
	defer vm.Stop()

	b.Emit(bus.KindSendFailed, intsync.SendFailure{ClientID: "local:1", Draft: "hi", Err: errors.New("http 500")})

	select {
	case <-vm.Flash.Changed():
	case <-time.After(time.Second):
		t.Fatal("no flash for send failure")
	}
	msg := vm.Flash.Current()
	if msg == nil || msg.Level != FlashErr || !strings.Contains(msg.Text, "http 500") {
		t.Errorf("flash = %+v", msg)
	}
}

func TestAttachment(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertMessages([]store.Message{
		{RoomID: "r1", MsgID: "old", FileName: "bike.jpg", FileURL: "https://files/bike.jpg", Timestamp: 1000},
	}); err != nil {
		t.Fatal(err)
	}
	eng := &fakeEngine{snap: intsync.Snapshot{Messages: []chat.Message{
		{ID: "m1", Body: "text only"},
		{ID: "m2", Attachment: &chat.Attachment{URL: "https://files/wallet.png", FileName: "wallet.png"}},
		{ID: "local:x", Attachment: &chat.Attachment{FileName: "uploading.png"}},
	}}}
	vm := NewViewModel(eng, db, nil, bus.New(), nil)

	if a, err := vm.Attachment("m2"); err != nil || a.URL != "https://files/wallet.png" {
		t.Errorf("Attachment(m2) = %+v, %v", a, err)
	}
	if a, err := vm.Attachment("old"); err != nil || a.FileName != "bike.jpg" {
		t.Errorf("Attachment(old) = %+v, %v", a, err)
	}
	if _, err := vm.Attachment("m1"); err == nil {
		t.Error("Attachment(m1) should fail")
	}
	if m, ok := vm.LatestAttachment(); !ok || m.ID != "m2" {
		t.Errorf("LatestAttachment() = %v, %v; want m2", m.ID, ok)
	}
}

func TestFlashExpires(t *testing.T) {
	f := NewFlash()
	now := time.Unix(100, 0)
	f.now = func() time.Time { return now }

	if f.Current() != nil {
		t.Error("new flash should be empty")
	}
	f.Info("saved")
	if m := f.Current(); m == nil || m.Text != "saved" || m.Level != FlashInfo {
		t.Errorf("Current() = %+v", m)
	}
	now = now.Add(5 * time.Second)
	if f.Current() != nil {
		t.Error("flash should expire")
	}
}
