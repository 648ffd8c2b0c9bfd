package status

import (
	"errors"
	"testing"
	"time"

	"github.com/lostfound/chatsync/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Idle {
		t.Errorf("initial state = %s, want IDLE", m.Current())
	}
}

// walkTo drives a fresh machine to the target state through valid transitions.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Idle:       {},
		Loading:    {Loading},
		Synced:     {Loading, Synced},
		LoadFailed: {Loading, LoadFailed},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Idle, Loading},
		{Loading, Synced},
		{Loading, LoadFailed},
		{Loading, Loading},
		{Loading, Idle},
		{Synced, Loading},
		{Synced, Idle},
		{LoadFailed, Loading},
		{LoadFailed, Idle},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Idle, Synced},
		{Idle, LoadFailed},
		{Idle, Idle},
		{Synced, LoadFailed},
		{Synced, Synced},
		{LoadFailed, Synced},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("Transition(%s -> %s) error = %v, want ErrInvalidTransition", tt.from, tt.to, err)
			}
			if CanTransition(tt.from, tt.to) {
				t.Errorf("CanTransition(%s, %s) = true", tt.from, tt.to)
			}
			if m.Current() != tt.from {
				t.Errorf("state changed to %s after rejected transition", m.Current())
			}
		})
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("engine.", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Loading); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-ch:
		if evt.Kind != bus.KindStateChanged {
			t.Errorf("kind = %q, want %q", evt.Kind, bus.KindStateChanged)
		}
		change, ok := evt.Payload.(StatusChange)
		if !ok {
			t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
		}
		if change.From != Idle || change.To != Loading {
			t.Errorf("change = %+v, want IDLE -> LOADING", change)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for state change event")
	}
}
