package ui

import (
	"fmt"

	"github.com/rivo/tview"
)

// Menu lists the key hints of the current page, one per line.
type Menu struct {
	*tview.TextView
	theme *Theme
}

// NewMenu creates an empty menu.
func NewMenu(theme *Theme) *Menu {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 2, 0)

	return &Menu{TextView: tv, theme: theme}
}

// Update renders hints.
func (m *Menu) Update(hints []MenuHint) {
	m.Clear()
	for _, h := range hints {
		kc := m.theme.MenuKeyColor
		if h.Numeric {
			kc = m.theme.NumericKeyColor
		}
		_, _ = fmt.Fprintf(m, "[%s::b]<%s>[-:-:-] %s\n", Tag(kc), tview.Escape(h.Key), h.Description)
	}
}
