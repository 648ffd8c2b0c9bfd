package ui

import "github.com/rivo/tview"

// Pages is a stack of components over tview.Pages. Pushing a page hides
// the one below it; popping reveals it again.
type Pages struct {
	*tview.Pages
	components map[string]Component
	stack      []string
	onChange   func(top Component, crumbs []string)
}

// NewPages creates an empty page stack.
func NewPages() *Pages {
	return &Pages{
		Pages:      tview.NewPages(),
		components: make(map[string]Component),
	}
}

// Add registers a component as a hidden page.
func (p *Pages) Add(c Component) {
	p.components[c.Name()] = c
	p.AddPage(c.Name(), c, true, false)
}

// SetOnChange sets a callback that fires when the stack changes.
func (p *Pages) SetOnChange(fn func(top Component, crumbs []string)) {
	p.onChange = fn
}

// Push shows the named page on top of the stack. Pushing the page that is
// already on top does nothing.
func (p *Pages) Push(name string) {
	if p.Current() == name {
		return
	}
	if len(p.stack) > 0 {
		p.HidePage(p.stack[len(p.stack)-1])
	}
	p.stack = append(p.stack, name)
	p.ShowPage(name)
	p.SendToFront(name)
	p.notify()
}

// Pop removes the top page unless it is the last one, and returns its name.
func (p *Pages) Pop() string {
	if len(p.stack) < 2 {
		return ""
	}
	top := p.stack[len(p.stack)-1]
	p.HidePage(top)
	p.stack = p.stack[:len(p.stack)-1]
	current := p.stack[len(p.stack)-1]
	p.ShowPage(current)
	p.SendToFront(current)
	p.notify()
	return top
}

// Reset clears the stack and shows only the named page.
func (p *Pages) Reset(name string) {
	for _, n := range p.stack {
		p.HidePage(n)
	}
	p.stack = []string{name}
	p.ShowPage(name)
	p.SendToFront(name)
	p.notify()
}

// Current returns the name of the top page.
func (p *Pages) Current() string {
	if len(p.stack) == 0 {
		return ""
	}
	return p.stack[len(p.stack)-1]
}

// Top returns the component on top of the stack, or nil.
func (p *Pages) Top() Component {
	return p.components[p.Current()]
}

// Stack returns a copy of the page names, bottom first.
func (p *Pages) Stack() []string {
	return append([]string(nil), p.stack...)
}

// Crumbs returns the breadcrumb label of every page on the stack.
func (p *Pages) Crumbs() []string {
	out := make([]string, len(p.stack))
	for i, name := range p.stack {
		out[i] = name
		if l, ok := p.components[name].(Labeled); ok {
			out[i] = l.Crumb()
		}
	}
	return out
}

func (p *Pages) notify() {
	if p.onChange != nil {
		p.onChange(p.Top(), p.Crumbs())
	}
}
