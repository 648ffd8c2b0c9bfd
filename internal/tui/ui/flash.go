package ui

import (
	"fmt"

	"github.com/lostfound/chatsync/internal/tui/model"
	"github.com/rivo/tview"
)

// FlashBar shows the current flash message.
type FlashBar struct {
	*tview.TextView
	theme *Theme
}

// NewFlashBar creates an empty flash bar.
func NewFlashBar(theme *Theme) *FlashBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)

	return &FlashBar{TextView: tv, theme: theme}
}

// Update renders msg, or clears the bar when msg is nil.
func (fb *FlashBar) Update(msg *model.FlashMessage) {
	fb.Clear()
	if msg == nil {
		return
	}

	color := fb.theme.FlashInfoColor
	switch msg.Level {
	case model.FlashWarn:
		color = fb.theme.FlashWarnColor
	case model.FlashErr:
		color = fb.theme.FlashErrColor
	}
	_, _ = fmt.Fprintf(fb, " [%s]%s[-]", Tag(color), tview.Escape(msg.Text))
}
