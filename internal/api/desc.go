package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "lostfound.chatsync.v1.ChatSync"

// ChatSyncServer is the control API served on the daemon socket. Messages
// are protobuf well-known types: structured results travel as Struct.
type ChatSyncServer interface {
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListRooms(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	SelectRoom(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	ListMessages(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SendText(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
	SendFile(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
	SearchMessages(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SyncNow(context.Context, *emptypb.Empty) (*wrapperspb.BoolValue, error)
}

// RegisterChatSyncServer registers srv on s.
func RegisterChatSyncServer(s grpc.ServiceRegistrar, srv ChatSyncServer) {
	s.RegisterService(&chatSyncDesc, srv)
}

var chatSyncDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChatSyncServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStatus", Handler: unary("GetStatus", newEmpty, ChatSyncServer.GetStatus)},
		{MethodName: "ListRooms", Handler: unary("ListRooms", newEmpty, ChatSyncServer.ListRooms)},
		{MethodName: "SelectRoom", Handler: unary("SelectRoom", newString, ChatSyncServer.SelectRoom)},
		{MethodName: "ListMessages", Handler: unary("ListMessages", newStruct, ChatSyncServer.ListMessages)},
		{MethodName: "SendText", Handler: unary("SendText", newString, ChatSyncServer.SendText)},
		{MethodName: "SendFile", Handler: unary("SendFile", newString, ChatSyncServer.SendFile)},
		{MethodName: "SearchMessages", Handler: unary("SearchMessages", newStruct, ChatSyncServer.SearchMessages)},
		{MethodName: "SyncNow", Handler: unary("SyncNow", newEmpty, ChatSyncServer.SyncNow)},
	},
	Metadata: "lostfound/chatsync/v1/chatsync.proto",
}

func newEmpty() *emptypb.Empty { return new(emptypb.Empty) }
func newString() *wrapperspb.StringValue { return new(wrapperspb.StringValue) }
func newStruct() *structpb.Struct { return new(structpb.Struct) }

// unary adapts a typed server method to a grpc.MethodHandler.
func unary[Req, Resp proto.Message](method string, newReq func() Req, call func(ChatSyncServer, context.Context, Req) (Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(ChatSyncServer)
		if interceptor == nil {
			return call(s, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(s, ctx, req.(Req))
		})
	}
}

// Client is the caller side of ChatSyncServer.
type Client struct {
	cc   grpc.ClientConnInterface
	conn *grpc.ClientConn
}

// NewClient wraps an existing connection. Close leaves it open.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Dial connects to the daemon's Unix domain socket. The connection is
// established lazily on the first call.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{cc: conn, conn: conn}, nil
}

// Close closes a connection opened by Dial.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func invoke[Resp proto.Message](ctx context.Context, c *Client, method string, in proto.Message, out Resp, opts ...grpc.CallOption) (Resp, error) {
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		var zero Resp
		return zero, err
	}
	return out, nil
}

func (c *Client) GetStatus(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke(ctx, c, "GetStatus", &emptypb.Empty{}, new(structpb.Struct), opts...)
}

func (c *Client) ListRooms(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke(ctx, c, "ListRooms", &emptypb.Empty{}, new(structpb.Struct), opts...)
}

// SelectRoom opens roomID on the daemon's engine. An empty ID deselects.
func (c *Client) SelectRoom(ctx context.Context, roomID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke(ctx, c, "SelectRoom", wrapperspb.String(roomID), new(structpb.Struct), opts...)
}

// ListMessages pages through a room's messages, newest first. Zero before
// and limit take the server defaults.
func (c *Client) ListMessages(ctx context.Context, roomID string, before int64, limit int, opts ...grpc.CallOption) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(map[string]any{"room_id": roomID, "before": before, "limit": limit})
	if err != nil {
		return nil, err
	}
	return invoke(ctx, c, "ListMessages", req, new(structpb.Struct), opts...)
}

// GetMessage fetches one message by server id from the live room or the
// archive. The result has the same shape as a ListMessages page.
func (c *Client) GetMessage(ctx context.Context, messageID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(map[string]any{"message_id": messageID})
	if err != nil {
		return nil, err
	}
	return invoke(ctx, c, "ListMessages", req, new(structpb.Struct), opts...)
}

func (c *Client) SendText(ctx context.Context, text string, opts ...grpc.CallOption) (bool, error) {
	out, err := invoke(ctx, c, "SendText", wrapperspb.String(text), new(wrapperspb.BoolValue), opts...)
	return out.GetValue(), err
}

// SendFile asks the daemon to upload and send the file at path, which is
// resolved on the daemon's filesystem.
func (c *Client) SendFile(ctx context.Context, path string, opts ...grpc.CallOption) (bool, error) {
	out, err := invoke(ctx, c, "SendFile", wrapperspb.String(path), new(wrapperspb.BoolValue), opts...)
	return out.GetValue(), err
}

func (c *Client) SearchMessages(ctx context.Context, query, roomID string, limit int, opts ...grpc.CallOption) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(map[string]any{"query": query, "room_id": roomID, "limit": limit})
	if err != nil {
		return nil, err
	}
	return invoke(ctx, c, "SearchMessages", req, new(structpb.Struct), opts...)
}

func (c *Client) SyncNow(ctx context.Context, opts ...grpc.CallOption) (bool, error) {
	out, err := invoke(ctx, c, "SyncNow", &emptypb.Empty{}, new(wrapperspb.BoolValue), opts...)
	return out.GetValue(), err
}

// Health reports the daemon's serving status for the ChatSync service. It
// is SERVING only while the open room is synced.
func (c *Client) Health(ctx context.Context) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := healthpb.NewHealthClient(c.cc).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}
