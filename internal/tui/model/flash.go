package model

import (
	"sync"
	"time"
)

// FlashLevel is the severity of a flash message.
type FlashLevel int

const (
	FlashInfo FlashLevel = iota
	FlashWarn
	FlashErr
)

// FlashMessage is a transient notification.
type FlashMessage struct {
	Text    string
	Level   FlashLevel
	Expires time.Time
}

// Flash holds the current notification and signals when it changes.
type Flash struct {
	mu      sync.RWMutex
	current FlashMessage
	now     func() time.Time
	changed chan struct{}
}

// NewFlash creates an empty flash holder.
func NewFlash() *Flash {
	return &Flash{now: time.Now, changed: make(chan struct{}, 1)}
}

func (f *Flash) Info(msg string) { f.set(msg, FlashInfo, 4*time.Second) }
func (f *Flash) Warn(msg string) { f.set(msg, FlashWarn, 8*time.Second) }
func (f *Flash) Err(err error)   { f.set(err.Error(), FlashErr, 10*time.Second) }

func (f *Flash) set(msg string, level FlashLevel, d time.Duration) {
	f.mu.Lock()
	f.current = FlashMessage{Text: msg, Level: level, Expires: f.now().Add(d)}
	f.mu.Unlock()
	select {
	case f.changed <- struct{}{}:
	default:
	}
}

// Current returns the active message, or nil once it has expired.
func (f *Flash) Current() *FlashMessage {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.current.Text == "" || f.now().After(f.current.Expires) {
		return nil
	}
	m := f.current
	return &m
}

// Changed signals after every new message. Signals coalesce.
func (f *Flash) Changed() <-chan struct{} {
	return f.changed
}
