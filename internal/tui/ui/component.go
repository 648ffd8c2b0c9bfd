package ui

import "github.com/rivo/tview"

// MenuHint describes a keyboard shortcut for display in the menu.
type MenuHint struct {
	Key         string
	Description string
	Numeric     bool // 1-9 shortcuts, drawn in a different color
}

// Component is a page of the TUI.
type Component interface {
	tview.Primitive
	// Name is the page name and its breadcrumb.
	Name() string
	Hints() []MenuHint
	// FocusTarget is the primitive that takes focus when the page is shown.
	FocusTarget() tview.Primitive
}

// Labeled is implemented by components whose breadcrumb differs from their
// page name.
type Labeled interface {
	Crumb() string
}
