package api

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/lostfound/chatsync/internal/bus"
	"github.com/lostfound/chatsync/internal/chat"
	"github.com/lostfound/chatsync/internal/store"
	intsync "github.com/lostfound/chatsync/internal/sync"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	grpcstatus "google.golang.org/grpc/status"
)

var (
	me   = chat.Session{UserID: "u1", Email: "me@lostfound.io", Name: "Me"}
	room = chat.Room{ID: "r1", PartnerEmail: "ada@lostfound.io", PartnerName: "Ada"}
)

// fakeBackend stands in for the REST client: MessageStore, FileStore and
// RoomLister in one.
type fakeBackend struct {
	mu       sync.Mutex
	rooms    []chat.Room
	roomsErr error
	history  map[string][]chat.Message
	sent     []chat.Outgoing
	uploads  []chat.Upload
}

func (f *fakeBackend) ListRooms(_ context.Context, email string) ([]chat.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if email != me.Email {
		return nil, errors.New("unexpected user " + email)
	}
	return slices.Clone(f.rooms), f.roomsErr
}

func (f *fakeBackend) History(_ context.Context, roomID string) ([]chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.history[roomID]), nil
}

func (f *fakeBackend) Since(context.Context, string, int64) ([]chat.Message, error) {
	return nil, nil
}

func (f *fakeBackend) Persist(_ context.Context, out chat.Outgoing) (chat.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, out)
	return chat.Receipt{MessageID: "srv-" + out.Body, Timestamp: 9000}, nil
}

func (f *fakeBackend) Upload(_ context.Context, up chat.Upload, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, up)
	return "https://files.lostfound.io/" + up.FileName, nil
}

func (f *fakeBackend) sentBodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, o := range f.sent {
		out = append(out, o.Body)
	}
	return out
}

type harness struct {
	client  *Client
	backend *fakeBackend
	engine  *intsync.Engine
	db      *store.DB
	bus     *bus.Bus
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	// Short path keeps the socket under the 104-char limit on macOS.
	dir, err := os.MkdirTemp("/tmp", "chatsync-api-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	db, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	backend := &fakeBackend{
		rooms: []chat.Room{room},
		history: map[string][]chat.Message{
			"r1": {{ID: "m1", RoomID: "r1", SenderEmail: room.PartnerEmail, Body: "found your keys", Timestamp: 1000}},
		},
	}
	b := bus.New()
	engine := intsync.New(backend, backend, me, b, nil, nil, intsync.Options{PollInterval: time.Hour})
	t.Cleanup(engine.Close)

	health := NewHealth(b, engine.Snapshot().State, nil)
	health.Start(context.Background())
	t.Cleanup(health.Stop)

	srv := grpc.NewServer()
	RegisterChatSyncServer(srv, NewService("test", engine, db, backend, b, nil))
	health.Register(srv)

	sock := filepath.Join(dir, "d.sock")
	lis, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("unix://"+sock, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return &harness{
		client:  NewClient(conn),
		backend: backend,
		engine:  engine,
		db:      db,
		bus:     b,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func wantCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	if got := grpcstatus.Code(err); got != code {
		t.Errorf("code = %v (err %v), want %v", got, err, code)
	}
}

func (h *harness) selectAndSync(t *testing.T) {
	t.Helper()
	if _, err := h.client.SelectRoom(context.Background(), room.ID); err != nil {
		t.Fatalf("SelectRoom() error = %v", err)
	}
	waitFor(t, "room synced", func() bool {
		st, err := h.client.GetStatus(context.Background())
		return err == nil && stringField(st, "state") == "SYNCED"
	})
}

func TestGetStatusIdle(t *testing.T) {
	h := newHarness(t)

	st, err := h.client.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if got := stringField(st, "profile"); got != "test" {
		t.Errorf("profile = %q, want test", got)
	}
	if got := stringField(st, "state"); got != "IDLE" {
		t.Errorf("state = %q, want IDLE", got)
	}
	if got := stringField(st, "user_email"); got != me.Email {
		t.Errorf("user_email = %q", got)
	}
	if _, ok := st.GetFields()["room"]; ok {
		t.Error("idle status should carry no room")
	}
}

func TestListRooms(t *testing.T) {
	h := newHarness(t)
	listed, unsub := h.bus.Subscribe(bus.KindRoomsListed, 1)
	defer unsub()

	resp, err := h.client.ListRooms(context.Background())
	if err != nil {
		t.Fatalf("ListRooms() error = %v", err)
	}
	rooms := List(resp, "rooms")
	if len(rooms) != 1 || Room(rooms[0]) != room {
		t.Errorf("rooms = %v, want [%v]", rooms, room)
	}
	if resp.GetFields()["offline"].GetBoolValue() {
		t.Error("offline = true, want false")
	}
	select {
	case <-listed:
	case <-time.After(time.Second):
		t.Error("rooms.listed not emitted")
	}
}

func TestListRoomsFallsBackToArchive(t *testing.T) {
	h := newHarness(t)
	h.backend.roomsErr = errors.New("connection refused")
	if err := h.db.UpsertRoom(&store.Room{ID: "r9", PartnerEmail: "zed@lostfound.io", PartnerName: "Zed"}); err != nil {
		t.Fatal(err)
	}

	resp, err := h.client.ListRooms(context.Background())
	if err != nil {
		t.Fatalf("ListRooms() error = %v", err)
	}
	if !resp.GetFields()["offline"].GetBoolValue() {
		t.Error("offline = false, want true")
	}
	rooms := List(resp, "rooms")
	if len(rooms) != 1 || stringField(rooms[0], "id") != "r9" {
		t.Errorf("rooms = %v, want archived r9", rooms)
	}
}

func TestSelectRoomAndSend(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.selectAndSync(t)

	page, err := h.client.ListMessages(ctx, "", 0, 0)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	msgs := List(page, "messages")
	if len(msgs) != 1 || Message(msgs[0]).Body != "found your keys" {
		t.Fatalf("messages = %v", msgs)
	}
	if !page.GetFields()["live"].GetBoolValue() {
		t.Error("active room page should be live")
	}

	ok, err := h.client.SendText(ctx, "thanks!")
	if err != nil || !ok {
		t.Fatalf("SendText() = %v, %v", ok, err)
	}
	waitFor(t, "send confirmed", func() bool {
		page, err := h.client.ListMessages(ctx, room.ID, 0, 10)
		if err != nil {
			return false
		}
		for _, m := range List(page, "messages") {
			if msg := Message(m); msg.ID == "srv-thanks!" && msg.State == chat.Sent {
				return true
			}
		}
		return false
	})
	if got := h.backend.sentBodies(); !slices.Equal(got, []string{"thanks!"}) {
		t.Errorf("persisted = %v", got)
	}

	if ok, err := h.client.SyncNow(ctx); err != nil || !ok {
		t.Errorf("SyncNow() = %v, %v; want true", ok, err)
	}

	_, err = h.client.SendText(ctx, "   ")
	wantCode(t, err, codes.InvalidArgument)
}

func TestSelectRoomErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.client.SelectRoom(ctx, "nope")
	wantCode(t, err, codes.NotFound)

	_, err = h.client.SendText(ctx, "hello?")
	wantCode(t, err, codes.FailedPrecondition)

	_, err = h.client.ListMessages(ctx, "", 0, 0)
	wantCode(t, err, codes.InvalidArgument)

	if ok, err := h.client.SyncNow(ctx); err != nil || ok {
		t.Errorf("SyncNow() = %v, %v; want false", ok, err)
	}
}

func TestDeselect(t *testing.T) {
	h := newHarness(t)
	h.selectAndSync(t)

	st, err := h.client.SelectRoom(context.Background(), "")
	if err != nil {
		t.Fatalf("SelectRoom(\"\") error = %v", err)
	}
	if got := stringField(st, "state"); got != "IDLE" {
		t.Errorf("state = %q, want IDLE", got)
	}
}

func TestSendFile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.selectAndSync(t)

	path := filepath.Join(t.TempDir(), "wallet.png")
	if err := os.WriteFile(path, []byte("\x89PNG\r\n\x1a\nfake"), 0600); err != nil {
		t.Fatal(err)
	}
	ok, err := h.client.SendFile(ctx, path)
	if err != nil || !ok {
		t.Fatalf("SendFile() = %v, %v", ok, err)
	}
	waitFor(t, "upload", func() bool {
		h.backend.mu.Lock()
		defer h.backend.mu.Unlock()
		return len(h.backend.uploads) == 1 && len(h.backend.sent) == 1
	})
	h.backend.mu.Lock()
	up := h.backend.uploads[0]
	h.backend.mu.Unlock()
	if up.FileName != "wallet.png" || up.ContentType != "image/png" {
		t.Errorf("upload = %s (%s), want wallet.png (image/png)", up.FileName, up.ContentType)
	}

	_, err = h.client.SendFile(ctx, filepath.Join(t.TempDir(), "missing.jpg"))
	wantCode(t, err, codes.NotFound)
	_, err = h.client.SendFile(ctx, t.TempDir())
	wantCode(t, err, codes.InvalidArgument)
}

func TestArchiveQueries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.db.UpsertMessages([]store.Message{
		{RoomID: "r2", MsgID: "a1", Body: "is this your umbrella?", Timestamp: 1000},
		{RoomID: "r2", MsgID: "a2", Body: "yes, the blue one", Timestamp: 2000},
		{RoomID: "r2", MsgID: "a3", FileName: "umbrella.jpg", FileURL: "https://files/umbrella.jpg", Timestamp: 3000},
	}); err != nil {
		t.Fatal(err)
	}

	page, err := h.client.ListMessages(ctx, "r2", 0, 2)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	msgs := List(page, "messages")
	if len(msgs) != 2 || Message(msgs[0]).ID != "a2" || Message(msgs[1]).ID != "a3" {
		t.Errorf("page = %v, want [a2 a3] oldest first", msgs)
	}
	if !page.GetFields()["has_more"].GetBoolValue() {
		t.Error("has_more = false, want true")
	}

	res, err := h.client.SearchMessages(ctx, "umbrella", "", 0)
	if err != nil {
		t.Fatalf("SearchMessages() error = %v", err)
	}
	if got := List(res, "results"); len(got) != 2 {
		t.Errorf("got %d results, want 2", len(got))
	}
	_, err = h.client.SearchMessages(ctx, " ", "", 0)
	wantCode(t, err, codes.InvalidArgument)

	one, err := h.client.GetMessage(ctx, "a3")
	if err != nil {
		t.Fatalf("GetMessage() error = %v", err)
	}
	if m := List(one, "messages"); len(m) != 1 || Message(m[0]).Attachment == nil {
		t.Errorf("message a3 = %v, want one attachment message", m)
	}
}

func TestHealthFollowsEngine(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		st, err := h.client.Health(ctx)
		if err != nil {
			t.Fatalf("Health() error = %v", err)
		}
		return st
	}
	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("idle status = %v, want NOT_SERVING", got)
	}

	h.selectAndSync(t)
	waitFor(t, "SERVING", func() bool { return check() == healthpb.HealthCheckResponse_SERVING })
}
