// Package outbox reconciles the send journal after a restart.
package outbox

import (
	"fmt"
	"time"

	"github.com/lostfound/chatsync/internal/bus"
	"github.com/lostfound/chatsync/internal/store"
	"go.uber.org/zap"
)

// Interrupted is the error recorded on sends that were still queued when
// the previous process exited.
const Interrupted = "interrupted: process exited before the backend confirmed the send"

// Journal is the part of the store the reconciler needs.
type Journal interface {
	FailQueuedOutbox(before int64, errMsg string) (int64, error)
	ListOutbox(status string, limit int) ([]store.OutboxEntry, error)
}

// Recovered is the payload of archive.outbox_recovered events.
type Recovered struct {
	Entries []store.OutboxEntry
}

// Reconciler closes journal entries no process can finish. Pending sends
// live only in the engine's memory, so a queued entry from an earlier run
// will never be acknowledged.
type Reconciler struct {
	journal Journal
	bus     *bus.Bus
	logger  *zap.Logger
}

// NewReconciler creates a reconciler. b may be nil.
func NewReconciler(j Journal, b *bus.Bus, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{journal: j, bus: b, logger: logger.Named("outbox")}
}

// Recover fails every entry queued before started. Call it before the
// engine accepts sends.
func (r *Reconciler) Recover(started time.Time) (int, error) {
	n, err := r.journal.FailQueuedOutbox(started.UnixMilli(), Interrupted)
	if err != nil {
		return 0, fmt.Errorf("recover outbox: %w", err)
	}
	if n == 0 {
		return 0, nil
	}

	failed, err := r.journal.ListOutbox(store.OutboxFailed, int(n))
	if err != nil {
		return int(n), fmt.Errorf("list recovered: %w", err)
	}
	for _, e := range failed {
		r.logger.Warn("send interrupted by restart",
			zap.String("client_msg_id", e.ClientMsgID),
			zap.String("room_id", e.RoomID),
		)
	}
	r.bus.Emit(bus.KindRecovered, Recovered{Entries: failed})
	return int(n), nil
}
