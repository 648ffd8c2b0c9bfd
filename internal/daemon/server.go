package daemon

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/lostfound/chatsync/internal/api"
	"github.com/lostfound/chatsync/internal/profile"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpcstatus "google.golang.org/grpc/status"
)

// Server manages the gRPC server lifecycle for a profile daemon.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
}

// NewServer creates a gRPC server bound to the profile's Unix domain socket.
func NewServer(p Params, logger *zap.Logger, svc *api.Service, health *api.Health) (*Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = profile.SocketPath(p.Profile)
	}

	// Clean stale socket if it exists. The profile lock guarantees no
	// other daemon is serving on it.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}

	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	srv := grpc.NewServer(grpc.UnaryInterceptor(logCalls(logger.Named("grpc"))))
	api.RegisterChatSyncServer(srv, svc)
	health.Register(srv)

	return &Server{
		grpcServer: srv,
		listener:   listener,
		socketPath: socketPath,
		logger:     logger,
	}, nil
}

// SocketPath returns the path the server listens on.
func (s *Server) SocketPath() string { return s.socketPath }

// Start begins serving gRPC requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("gRPC server starting", zap.String("socket", s.socketPath))
	return s.grpcServer.Serve(s.listener)
}

// Stop performs a graceful shutdown and removes the socket file. It falls
// back to a hard stop when ctx expires first.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("gRPC server stopping")
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
		<-done
	}
	_ = os.Remove(s.socketPath)
}

func logCalls(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Duration("took", time.Since(start)),
		}
		if err != nil {
			logger.Warn("call failed", append(fields, zap.Stringer("code", grpcstatus.Code(err)), zap.Error(err))...)
		} else {
			logger.Debug("call", fields...)
		}
		return resp, err
	}
}
