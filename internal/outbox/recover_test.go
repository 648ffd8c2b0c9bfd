package outbox

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/lostfound/chatsync/internal/bus"
	"github.com/lostfound/chatsync/internal/store"
)

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

func TestRecoverFailsStaleQueued(t *testing.T) {
	db := testDB(t)
	for _, id := range []string{"local:a", "local:b", "local:c"} {
		if err := db.QueueOutbox(id, "r1", "lost keys", ""); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.MarkOutboxSent("local:b", "srv-b"); err != nil {
		t.Fatal(err)
	}

	b := bus.New()
	ch, unsub := b.Subscribe("archive.", 4)
	defer unsub()

	r := NewReconciler(db, b, nil)
	n, err := r.Recover(time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("recovered %d entries, want 2", n)
	}

	failed, err := db.ListOutbox(store.OutboxFailed, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 2 {
		t.Fatalf("got %d failed entries, want 2", len(failed))
	}
	for _, e := range failed {
		if e.ErrorMessage != Interrupted {
			t.Errorf("%s error = %q", e.ClientMsgID, e.ErrorMessage)
		}
		if e.ClientMsgID == "local:b" {
			t.Error("sent entry was failed")
		}
	}

	select {
	case evt := <-ch:
		rec, ok := evt.Payload.(Recovered)
		if evt.Kind != bus.KindRecovered || !ok || len(rec.Entries) != 2 {
			t.Errorf("event = %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("no recovery event")
	}
}

func TestRecoverLeavesNewEntries(t *testing.T) {
	db := testDB(t)
	started := time.Now().Add(-time.Hour)
	if err := db.QueueOutbox("local:new", "r1", "hi", ""); err != nil {
		t.Fatal(err)
	}

	n, err := NewReconciler(db, nil, nil).Recover(started)
	if err != nil || n != 0 {
		t.Fatalf("Recover() = %d, %v; want 0, nil", n, err)
	}
	queued, _ := db.ListOutbox(store.OutboxQueued, 10)
	if len(queued) != 1 {
		t.Errorf("queued = %d, want 1", len(queued))
	}
}

type brokenJournal struct{}

func (brokenJournal) FailQueuedOutbox(int64, string) (int64, error) {
	return 0, errors.New("disk I/O error")
}

func (brokenJournal) ListOutbox(string, int) ([]store.OutboxEntry, error) { return nil, nil }

func TestRecoverError(t *testing.T) {
	if _, err := NewReconciler(brokenJournal{}, nil, nil).Recover(time.Now()); err == nil {
		t.Error("expected error")
	}
}
