package api

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/lostfound/chatsync/internal/bus"
	"github.com/lostfound/chatsync/internal/chat"
	"github.com/lostfound/chatsync/internal/filestore"
	"github.com/lostfound/chatsync/internal/store"
	intsync "github.com/lostfound/chatsync/internal/sync"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Engine is the part of the sync engine the control API drives.
type Engine interface {
	Self() chat.Session
	Snapshot() *intsync.Snapshot
	SelectRoom(room *chat.Room)
	SendText(text string) bool
	SendFile(f chat.Upload) bool
	PollNow() bool
}

// RoomLister fetches the user's rooms from the backend.
type RoomLister interface {
	ListRooms(ctx context.Context, email string) ([]chat.Room, error)
}

// Service implements ChatSyncServer over the engine, the archive and the
// backend room list.
type Service struct {
	profile   string
	startedAt time.Time
	engine    Engine
	db        *store.DB
	rooms     RoomLister
	bus       *bus.Bus
	logger    *zap.Logger
}

// NewService creates the control service. db and rooms may be nil.
func NewService(profile string, engine Engine, db *store.DB, rooms RoomLister, b *bus.Bus, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		profile:   profile,
		startedAt: time.Now(),
		engine:    engine,
		db:        db,
		rooms:     rooms,
		bus:       b,
		logger:    logger.Named("api"),
	}
}

func (s *Service) GetStatus(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	self := s.engine.Self()
	v := snapshotToValue(s.engine.Snapshot())
	v["profile"] = s.profile
	v["user_email"] = self.Email
	v["user_name"] = self.Name
	v["uptime_ms"] = time.Since(s.startedAt).Milliseconds()
	if s.db != nil {
		if n, err := s.db.MessageCount(); err == nil {
			v["archived_messages"] = n
		}
	}
	return structpb.NewStruct(v)
}

// ListRooms asks the backend for the user's rooms. When the backend is
// unreachable it answers from the archive and sets offline.
func (s *Service) ListRooms(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	var fetchErr error
	if s.rooms != nil {
		rooms, err := s.rooms.ListRooms(ctx, s.engine.Self().Email)
		if err == nil {
			s.bus.Emit(bus.KindRoomsListed, rooms)
			list := make([]any, 0, len(rooms))
			for _, r := range rooms {
				list = append(list, roomToValue(r))
			}
			return structpb.NewStruct(map[string]any{"rooms": list, "offline": false})
		}
		s.logger.Warn("list rooms failed, using archive", zap.Error(err))
		fetchErr = err
	}

	if s.db == nil {
		return nil, grpcstatus.Errorf(codes.Unavailable, "list rooms: %v", fetchErr)
	}
	archived, err := s.db.ListRooms(maxPageSize, 0)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "list archived rooms: %v", err)
	}
	list := make([]any, 0, len(archived))
	for _, r := range archived {
		list = append(list, archivedRoomToValue(r))
	}
	return structpb.NewStruct(map[string]any{"rooms": list, "offline": true})
}

// SelectRoom makes the room active on the engine. An empty id deselects.
// The response is the engine snapshot right after selection, normally in
// the LOADING state.
func (s *Service) SelectRoom(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	id := strings.TrimSpace(req.GetValue())
	if id == "" {
		s.engine.SelectRoom(nil)
		s.rememberRoom("")
		return structpb.NewStruct(snapshotToValue(s.engine.Snapshot()))
	}

	room, err := s.lookupRoom(ctx, id)
	if err != nil {
		return nil, err
	}
	s.engine.SelectRoom(room)
	s.rememberRoom(id)
	return structpb.NewStruct(snapshotToValue(s.engine.Snapshot()))
}

func (s *Service) rememberRoom(id string) {
	if s.db == nil {
		return
	}
	if err := s.db.SetState(store.KeyLastRoom, id); err != nil {
		s.logger.Warn("could not save last room", zap.Error(err))
	}
}

// RestoreRoom reselects the room that was active when the daemon last
// stopped, using only the archive. It returns the room id, or "" when
// there was none.
func (s *Service) RestoreRoom() (string, error) {
	if s.db == nil {
		return "", nil
	}
	id, err := s.db.State(store.KeyLastRoom)
	if err != nil || id == "" {
		return "", err
	}
	r, err := s.db.GetRoom(id)
	if err != nil {
		return id, err
	}
	if r == nil || r.PartnerEmail == "" {
		return id, fmt.Errorf("room %s is not in the archive", id)
	}
	room := r.Chat()
	s.engine.SelectRoom(&room)
	return id, nil
}

func (s *Service) lookupRoom(ctx context.Context, id string) (*chat.Room, error) {
	if s.db != nil {
		r, err := s.db.GetRoom(id)
		if err != nil {
			return nil, grpcstatus.Errorf(codes.Internal, "get room: %v", err)
		}
		// Archived rooms created from messages alone have no partner yet.
		if r != nil && r.PartnerEmail != "" {
			room := r.Chat()
			return &room, nil
		}
	}
	if s.rooms != nil {
		rooms, err := s.rooms.ListRooms(ctx, s.engine.Self().Email)
		if err != nil {
			return nil, grpcstatus.Errorf(codes.Unavailable, "list rooms: %v", err)
		}
		s.bus.Emit(bus.KindRoomsListed, rooms)
		for _, r := range rooms {
			if r.ID == id {
				return &r, nil
			}
		}
	}
	return nil, grpcstatus.Errorf(codes.NotFound, "room %q not found", id)
}

// ListMessages returns a page of messages, oldest first. Fields:
// room_id (default: the active room), before (timestamp, exclusive),
// limit, and message_id to fetch a single message. For the active room
// without before, the page comes from the engine and includes pending
// sends. Everything else is served from the archive.
func (s *Service) ListMessages(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if id := stringField(req, "message_id"); id != "" {
		return s.getMessage(id)
	}

	limit := int(intField(req, "limit"))
	if limit <= 0 {
		limit = defaultPageSize
	}
	limit = min(limit, maxPageSize)
	before := intField(req, "before")

	snap := s.engine.Snapshot()
	roomID := stringField(req, "room_id")
	if roomID == "" && snap.Room != nil {
		roomID = snap.Room.ID
	}
	if roomID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "room_id is required when no room is selected")
	}

	if before <= 0 && snap.Room != nil && snap.Room.ID == roomID {
		msgs := snap.Messages
		hasMore := len(msgs) > limit
		if hasMore {
			msgs = msgs[len(msgs)-limit:]
		}
		return structpb.NewStruct(map[string]any{
			"room_id":  roomID,
			"messages": messagesToValue(msgs),
			"has_more": hasMore,
			"live":     true,
		})
	}

	if s.db == nil {
		return nil, grpcstatus.Error(codes.FailedPrecondition, "no archive and room is not active")
	}
	archived, err := s.db.ListMessages(roomID, before, limit)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "list messages: %v", err)
	}
	msgs := make([]chat.Message, 0, len(archived))
	for _, m := range archived {
		msgs = append(msgs, m.Chat())
	}
	slices.Reverse(msgs)
	return structpb.NewStruct(map[string]any{
		"room_id":  roomID,
		"messages": messagesToValue(msgs),
		"has_more": len(archived) == limit,
		"live":     false,
	})
}

func (s *Service) getMessage(id string) (*structpb.Struct, error) {
	snap := s.engine.Snapshot()
	for _, m := range snap.Messages {
		if m.ID == id {
			return structpb.NewStruct(map[string]any{"messages": []any{messageToValue(m)}})
		}
	}
	if s.db != nil {
		m, err := s.db.GetMessage(id)
		if err != nil {
			return nil, grpcstatus.Errorf(codes.Internal, "get message: %v", err)
		}
		if m != nil {
			return structpb.NewStruct(map[string]any{"messages": []any{messageToValue(m.Chat())}})
		}
	}
	return nil, grpcstatus.Errorf(codes.NotFound, "message %q not found", id)
}

// SendText queues text in the active room. The result only reports that
// the send was accepted; delivery is observed through the room's messages.
func (s *Service) SendText(_ context.Context, req *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	if strings.TrimSpace(req.GetValue()) == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "text is empty")
	}
	if !s.engine.SendText(req.GetValue()) {
		return nil, grpcstatus.Errorf(codes.FailedPrecondition, "cannot send in state %s", s.engine.Snapshot().State)
	}
	return wrapperspb.Bool(true), nil
}

// SendFile reads the file at a path local to the daemon and sends it as
// an attachment in the active room.
func (s *Service) SendFile(_ context.Context, req *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	path := req.GetValue()
	if path == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "path is empty")
	}
	up, err := filestore.ReadUpload(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, grpcstatus.Errorf(codes.NotFound, "%v", err)
		}
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	if !s.engine.SendFile(up) {
		return nil, grpcstatus.Errorf(codes.FailedPrecondition, "cannot send file in state %s", s.engine.Snapshot().State)
	}
	return wrapperspb.Bool(true), nil
}

// SearchMessages searches the archive. Fields: query, room_id, limit.
func (s *Service) SearchMessages(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	query := strings.TrimSpace(stringField(req, "query"))
	if query == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "query is empty")
	}
	if s.db == nil {
		return nil, grpcstatus.Error(codes.FailedPrecondition, "search needs the archive")
	}
	limit := int(intField(req, "limit"))
	if limit <= 0 {
		limit = defaultPageSize
	}
	limit = min(limit, maxPageSize)

	results, err := s.db.SearchMessages(query, stringField(req, "room_id"), limit)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "search messages: %v", err)
	}
	list := make([]any, 0, len(results))
	for _, r := range results {
		v := messageToValue(r.Message.Chat())
		v["snippet"] = r.Snippet
		list = append(list, v)
	}
	return structpb.NewStruct(map[string]any{
		"results":  list,
		"has_more": len(results) == limit,
	})
}

// SyncNow triggers an immediate poll of the active room. It reports false
// when no room is synced or a poll is already in flight.
func (s *Service) SyncNow(_ context.Context, _ *emptypb.Empty) (*wrapperspb.BoolValue, error) {
	return wrapperspb.Bool(s.engine.PollNow()), nil
}
