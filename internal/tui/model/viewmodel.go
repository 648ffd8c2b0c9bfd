package model

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/lostfound/chatsync/internal/bus"
	"github.com/lostfound/chatsync/internal/chat"
	"github.com/lostfound/chatsync/internal/filestore"
	"github.com/lostfound/chatsync/internal/store"
	intsync "github.com/lostfound/chatsync/internal/sync"
	"go.uber.org/zap"
)

const (
	archivedRoomLimit = 500
	searchLimit       = 100
)

// Engine is the sync engine surface the TUI drives.
type Engine interface {
	Self() chat.Session
	Snapshot() *intsync.Snapshot
	Updates() <-chan struct{}
	SelectRoom(room *chat.Room)
	SendText(text string) bool
	SendFile(f chat.Upload) bool
	TakeDraft() string
	PollNow() bool
}

// RoomLister fetches the user's rooms from the backend.
type RoomLister interface {
	ListRooms(ctx context.Context, email string) ([]chat.Room, error)
}

// RoomRow is a room with the last message the archive has seen in it.
type RoomRow struct {
	chat.Room
	LastMessageAt int64
	Preview       string
}

// ViewModel sits between the views and the engine. It caches the room
// list and turns engine failures into flash messages.
type ViewModel struct {
	engine Engine
	db     *store.DB
	rooms  RoomLister
	bus    *bus.Bus
	logger *zap.Logger
	Flash  *Flash

	mu       sync.RWMutex
	roomRows []RoomRow
	offline  bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewViewModel creates a view model. db and rooms may be nil.
func NewViewModel(engine Engine, db *store.DB, rooms RoomLister, b *bus.Bus, logger *zap.Logger) *ViewModel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ViewModel{
		engine: engine,
		db:     db,
		rooms:  rooms,
		bus:    b,
		logger: logger.Named("tui"),
		Flash:  NewFlash(),
	}
}

// Start reports send, upload and load failures from the bus as flash
// messages until Stop.
func (vm *ViewModel) Start(ctx context.Context) {
	ctx, vm.cancel = context.WithCancel(ctx)
	vm.done = make(chan struct{})
	ch, unsub := vm.bus.Subscribe("chat.", 64)

	go func() {
		defer close(vm.done)
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-ch:
				vm.handleEvent(evt)
			}
		}
	}()
}

// Stop ends event processing.
func (vm *ViewModel) Stop() {
	if vm.cancel != nil {
		vm.cancel()
		<-vm.done
	}
}

func (vm *ViewModel) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case bus.KindSendFailed:
		if f, ok := evt.Payload.(intsync.SendFailure); ok {
			vm.Flash.Err(fmt.Errorf("send failed: %w", f.Err))
		}
	case bus.KindUploadFailed:
		if f, ok := evt.Payload.(intsync.SendFailure); ok {
			vm.Flash.Err(fmt.Errorf("upload of %s failed: %w", f.FileName, f.Err))
		}
	case bus.KindLoadFailed:
		if f, ok := evt.Payload.(intsync.LoadFailure); ok {
			vm.Flash.Err(fmt.Errorf("could not load %s: %w", f.Room.DisplayName(), f.Err))
		}
	}
}

// Self returns the signed-in identity.
func (vm *ViewModel) Self() chat.Session { return vm.engine.Self() }

// Snapshot returns the engine's current state.
func (vm *ViewModel) Snapshot() *intsync.Snapshot { return vm.engine.Snapshot() }

// Updates signals whenever the engine publishes a new snapshot.
func (vm *ViewModel) Updates() <-chan struct{} { return vm.engine.Updates() }

// LoadRooms refreshes the room list from the backend. When the backend is
// unreachable the archived rooms are shown instead and Offline reports true.
func (vm *ViewModel) LoadRooms(ctx context.Context) error {
	archived := vm.archivedRooms()

	var fetched []chat.Room
	var fetchErr error
	if vm.rooms != nil {
		fetched, fetchErr = vm.rooms.ListRooms(ctx, vm.engine.Self().Email)
	} else {
		fetchErr = errors.New("no backend")
	}

	var rows []RoomRow
	if fetchErr == nil {
		vm.bus.Emit(bus.KindRoomsListed, fetched)
		rows = make([]RoomRow, 0, len(fetched))
		for _, r := range fetched {
			row := RoomRow{Room: r}
			if a, ok := archived[r.ID]; ok {
				row.LastMessageAt = a.LastMessageAt
				row.Preview = a.LastMessagePreview
			}
			rows = append(rows, row)
		}
	} else {
		if len(archived) == 0 {
			return fmt.Errorf("list rooms: %w", fetchErr)
		}
		vm.logger.Warn("list rooms failed, showing archive", zap.Error(fetchErr))
		for _, a := range archived {
			if a.PartnerEmail == "" {
				continue
			}
			rows = append(rows, RoomRow{Room: a.Chat(), LastMessageAt: a.LastMessageAt, Preview: a.LastMessagePreview})
		}
	}
	sortRooms(rows)

	vm.mu.Lock()
	vm.roomRows = rows
	vm.offline = fetchErr != nil
	vm.mu.Unlock()
	return nil
}

func (vm *ViewModel) archivedRooms() map[string]store.Room {
	out := make(map[string]store.Room)
	if vm.db == nil {
		return out
	}
	rooms, err := vm.db.ListRooms(archivedRoomLimit, 0)
	if err != nil {
		vm.logger.Warn("list archived rooms", zap.Error(err))
		return out
	}
	for _, r := range rooms {
		out[r.ID] = r
	}
	return out
}

// sortRooms orders rooms by most recent activity, then by name.
func sortRooms(rows []RoomRow) {
	slices.SortStableFunc(rows, func(a, b RoomRow) int {
		if c := cmp.Compare(b.LastMessageAt, a.LastMessageAt); c != 0 {
			return c
		}
		return cmp.Compare(strings.ToLower(a.DisplayName()), strings.ToLower(b.DisplayName()))
	})
}

// Rooms returns the cached room list.
func (vm *ViewModel) Rooms() []RoomRow {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.roomRows
}

// Offline reports whether the room list came from the archive.
func (vm *ViewModel) Offline() bool {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.offline
}

// Room returns the cached room with the given id.
func (vm *ViewModel) Room(id string) (RoomRow, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for _, r := range vm.roomRows {
		if r.ID == id {
			return r, true
		}
	}
	return RoomRow{}, false
}

// FindRoom returns the first room whose name or partner email contains
// query, case-insensitively.
func (vm *ViewModel) FindRoom(query string) (RoomRow, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return RoomRow{}, false
	}
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for _, r := range vm.roomRows {
		if r.ID == query ||
			strings.Contains(strings.ToLower(r.DisplayName()), q) ||
			strings.Contains(strings.ToLower(r.PartnerEmail), q) {
			return r, true
		}
	}
	return RoomRow{}, false
}

// Open makes the room active and remembers it for the next start.
func (vm *ViewModel) Open(id string) error {
	row, ok := vm.Room(id)
	if !ok {
		return fmt.Errorf("room %s not found", id)
	}
	room := row.Room
	vm.engine.SelectRoom(&room)
	if vm.db != nil {
		if err := vm.db.SetState(store.KeyLastRoom, id); err != nil {
			vm.logger.Warn("could not save last room", zap.Error(err))
		}
	}
	return nil
}

// Close deselects the active room.
func (vm *ViewModel) Close() {
	vm.engine.SelectRoom(nil)
}

// LastRoom returns the room that was open when the profile last stopped.
func (vm *ViewModel) LastRoom() string {
	if vm.db == nil {
		return ""
	}
	id, err := vm.db.State(store.KeyLastRoom)
	if err != nil {
		vm.logger.Warn("read last room", zap.Error(err))
	}
	return id
}

// Send queues text in the active room.
func (vm *ViewModel) Send(text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if !vm.engine.SendText(text) {
		return errors.New("open a room first")
	}
	return nil
}

// SendFile reads a local file and sends it as an attachment.
func (vm *ViewModel) SendFile(path string) error {
	up, err := filestore.ReadUpload(expandHome(strings.TrimSpace(path)))
	if err != nil {
		return err
	}
	if !vm.engine.SendFile(up) {
		return errors.New("cannot send a file now: open a room first")
	}
	vm.Flash.Info("uploading " + up.FileName)
	return nil
}

// TakeDraft returns text restored by a failed send.
func (vm *ViewModel) TakeDraft() string { return vm.engine.TakeDraft() }

// Refresh polls the active room immediately.
func (vm *ViewModel) Refresh() bool { return vm.engine.PollNow() }

// Search searches the archive across all rooms.
func (vm *ViewModel) Search(query string) ([]store.SearchResult, error) {
	if vm.db == nil {
		return nil, errors.New("search needs the archive")
	}
	return vm.db.SearchMessages(query, "", searchLimit)
}

// Attachment returns the attachment of a message in the active room or
// the archive.
func (vm *ViewModel) Attachment(msgID string) (*chat.Attachment, error) {
	for _, m := range vm.engine.Snapshot().Messages {
		if m.ID == msgID {
			if m.Attachment == nil || m.Attachment.URL == "" {
				return nil, fmt.Errorf("message %s has no uploaded attachment", msgID)
			}
			return m.Attachment, nil
		}
	}
	if vm.db != nil {
		m, err := vm.db.GetMessage(msgID)
		if err != nil {
			return nil, err
		}
		if m != nil && m.FileURL != "" {
			return m.Chat().Attachment, nil
		}
	}
	return nil, fmt.Errorf("no attachment for message %s", msgID)
}

// LatestAttachment returns the newest uploaded attachment in the active room.
func (vm *ViewModel) LatestAttachment() (chat.Message, bool) {
	msgs := vm.engine.Snapshot().Messages
	for i := len(msgs) - 1; i >= 0; i-- {
		if a := msgs[i].Attachment; a != nil && a.URL != "" {
			return msgs[i], true
		}
	}
	return chat.Message{}, false
}
