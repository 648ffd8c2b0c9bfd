package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

// Crumbs shows the page stack as a breadcrumb trail.
type Crumbs struct {
	*tview.TextView
	theme *Theme
}

// NewCrumbs creates an empty breadcrumb bar.
func NewCrumbs(theme *Theme) *Crumbs {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)

	return &Crumbs{TextView: tv, theme: theme}
}

// Update renders the trail. The last crumb is highlighted.
func (c *Crumbs) Update(stack []string) {
	c.Clear()
	parts := make([]string, 0, len(stack))
	for i, name := range stack {
		fg, bg, attr := c.theme.CrumbInactiveFg, c.theme.CrumbInactiveBg, ""
		if i == len(stack)-1 {
			fg, bg, attr = c.theme.CrumbActiveFg, c.theme.CrumbActiveBg, "b"
		}
		parts = append(parts, fmt.Sprintf("[%s:%s:%s] %s [-:-:-]", Tag(fg), Tag(bg), attr, tview.Escape(name)))
	}
	_, _ = fmt.Fprint(c, strings.Join(parts, " "))
}
