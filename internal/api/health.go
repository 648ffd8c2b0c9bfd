package api

import (
	"context"

	"github.com/lostfound/chatsync/internal/bus"
	"github.com/lostfound/chatsync/internal/status"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Health serves grpc.health.v1.Health for ChatSync. The service is
// SERVING while the engine is Synced and NOT_SERVING otherwise.
type Health struct {
	srv    *health.Server
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHealth creates a health server reporting the given initial state.
func NewHealth(b *bus.Bus, initial status.State, logger *zap.Logger) *Health {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Health{srv: health.NewServer(), bus: b, logger: logger.Named("health")}
	h.set(initial)
	return h
}

// Register adds the health service to s.
func (h *Health) Register(s grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(s, h.srv)
}

// Start follows engine state changes on the bus until Stop.
func (h *Health) Start(ctx context.Context) {
	ctx, h.cancel = context.WithCancel(ctx)
	h.done = make(chan struct{})
	ch, unsub := h.bus.Subscribe(bus.KindStateChanged, 16)

	go func() {
		defer close(h.done)
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if sc, ok := evt.Payload.(status.StatusChange); ok {
					h.set(sc.To)
				}
			}
		}
	}()
}

// Stop ends event processing and marks every service NOT_SERVING.
func (h *Health) Stop() {
	if h.cancel != nil {
		h.cancel()
		<-h.done
	}
	h.srv.Shutdown()
}

func (h *Health) set(s status.State) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if s == status.Synced {
		st = healthpb.HealthCheckResponse_SERVING
	}
	h.logger.Debug("health", zap.String("state", string(s)), zap.Stringer("status", st))
	h.srv.SetServingStatus(ServiceName, st)
	h.srv.SetServingStatus("", st)
}
