package views

import (
	"fmt"
	"time"

	"github.com/lostfound/chatsync/internal/tui/model"
	"github.com/lostfound/chatsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// RoomInfo shows details of the open room.
type RoomInfo struct {
	*tview.TextView
	theme *ui.Theme
}

// NewRoomInfo creates an empty details page.
func NewRoomInfo(theme *ui.Theme) *RoomInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Room Details ")
	tv.SetTitleColor(theme.TitleColor)

	return &RoomInfo{TextView: tv, theme: theme}
}

// Name implements ui.Component.
func (ri *RoomInfo) Name() string { return "Details" }

// FocusTarget implements ui.Component.
func (ri *RoomInfo) FocusTarget() tview.Primitive { return ri.TextView }

// Hints implements ui.Component.
func (ri *RoomInfo) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
		{Key: ":", Description: "Command"},
		{Key: "?", Description: "Help"},
	}
}

// RoomStats is what the engine knows about the open room.
type RoomStats struct {
	Messages int
	Cursor   int64
	State    string
}

// Update renders room details.
func (ri *RoomInfo) Update(room model.RoomRow, stats RoomStats) {
	ri.Clear()

	fg, ct := ui.Tag(ri.theme.FgColor), ui.Tag(ri.theme.CounterColor)
	cursor := "-"
	if stats.Cursor > 0 {
		cursor = time.UnixMilli(stats.Cursor).Format(time.DateTime)
	}
	last := formatTimestamp(room.LastMessageAt)
	if last == "" {
		last = "-"
	}

	rows := [][2]string{
		{"Partner:", room.DisplayName()},
		{"Email:", room.PartnerEmail},
		{"Room ID:", room.ID},
		{"Status:", room.Status},
		{"Sync state:", stats.State},
		{"Loaded:", fmt.Sprintf("%d messages", stats.Messages)},
		{"Synced to:", cursor},
		{"Last active:", last},
	}
	for _, r := range rows {
		_, _ = fmt.Fprintf(ri, "\n [%s::b]%-13s[-:-:-][%s]%s[-]", fg, r[0], ct, tview.Escape(r[1]))
	}
	ri.SetTitle(fmt.Sprintf(" %s Details ", tview.Escape(room.DisplayName())))
}
