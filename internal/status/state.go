// Package status holds the engine's lifecycle state for the open room.
package status

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/lostfound/chatsync/internal/bus"
)

// State is the lifecycle state of the chat sync engine for the active room.
type State string

const (
	Idle       State = "IDLE"
	Loading    State = "LOADING"
	Synced     State = "SYNCED"
	LoadFailed State = "LOAD_FAILED"
)

// ErrInvalidTransition is wrapped by every rejected Transition.
var ErrInvalidTransition = errors.New("invalid state transition")

// next lists the states reachable from each state.
// Loading -> Loading happens when the user switches rooms mid-load.
var next = map[State][]State{
	Idle:       {Loading},
	Loading:    {Synced, LoadFailed, Loading, Idle},
	Synced:     {Loading, Idle},
	LoadFailed: {Loading, Idle},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	return slices.Contains(next[from], to)
}

// StatusChange is the payload of engine.state_changed events.
type StatusChange struct {
	From State
	To   State
}

// Machine guards the current state. Every accepted move is announced on
// the bus.
type Machine struct {
	mu    sync.RWMutex
	state State
	bus   *bus.Bus
}

// NewMachine starts in Idle. b may be nil.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{state: Idle, bus: b}
}

func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Transition moves to the given state. A rejected move leaves the state
// unchanged and returns an error wrapping ErrInvalidTransition.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	from := m.state
	if !CanTransition(from, to) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	m.state = to
	m.mu.Unlock()

	m.bus.Emit(bus.KindStateChanged, StatusChange{From: from, To: to})
	return nil
}
