// Package keys maps key events to actions per page.
package keys

import "github.com/gdamore/tcell/v2"

// Binding is one key and what it does.
type Binding struct {
	Key     tcell.Key
	Rune    rune
	Handler func()
}

// Key binds a special key.
func Key(k tcell.Key, fn func()) Binding {
	return Binding{Key: k, Handler: fn}
}

// Rune binds a printable key.
func Rune(r rune, fn func()) Binding {
	return Binding{Key: tcell.KeyRune, Rune: r, Handler: fn}
}

// Matches reports whether ev triggers b.
func (b Binding) Matches(ev *tcell.EventKey) bool {
	if b.Key != tcell.KeyRune {
		return ev.Key() == b.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == b.Rune
}

// Registry holds global and per-page bindings. Page bindings win over
// global ones; within a scope the first match wins.
type Registry struct {
	global []Binding
	pages  map[string][]Binding
	digits map[string]func(n int)
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		pages:  make(map[string][]Binding),
		digits: make(map[string]func(int)),
	}
}

// Global adds bindings active on every page.
func (r *Registry) Global(bs ...Binding) {
	r.global = append(r.global, bs...)
}

// Page adds bindings active only on the named page.
func (r *Registry) Page(page string, bs ...Binding) {
	r.pages[page] = append(r.pages[page], bs...)
}

// Digits routes 0-9 on the named page to fn.
func (r *Registry) Digits(page string, fn func(n int)) {
	r.digits[page] = fn
}

// Handle runs the binding for ev on page and reports whether one matched.
func (r *Registry) Handle(page string, ev *tcell.EventKey) bool {
	for _, b := range r.pages[page] {
		if b.Matches(ev) {
			b.Handler()
			return true
		}
	}
	if fn, ok := r.digits[page]; ok && ev.Key() == tcell.KeyRune && ev.Rune() >= '0' && ev.Rune() <= '9' {
		fn(int(ev.Rune() - '0'))
		return true
	}
	for _, b := range r.global {
		if b.Matches(ev) {
			b.Handler()
			return true
		}
	}
	return false
}
