package ui

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
)

// ProfileData is what the header shows about the running profile.
type ProfileData struct {
	Profile string
	User    string
	State   string
	Room    string
	Cursor  int64
	Sending int
	Offline bool
	Uptime  time.Duration
}

// ProfileInfo is the header panel with profile and sync details.
type ProfileInfo struct {
	*tview.TextView
	theme *Theme
}

// NewProfileInfo creates an empty panel.
func NewProfileInfo(theme *Theme) *ProfileInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &ProfileInfo{TextView: tv, theme: theme}
}

// Update renders d.
func (pi *ProfileInfo) Update(d ProfileData) {
	pi.Clear()

	room := d.Room
	if room == "" {
		room = "-"
	}
	state := d.State
	if d.Offline {
		state += " (offline)"
	}
	cursor := "-"
	if d.Cursor > 0 {
		cursor = time.UnixMilli(d.Cursor).Format("15:04:05")
	}

	rows := [][2]string{
		{"Profile:", d.Profile},
		{"User:", d.User},
		{"State:", state},
		{"Room:", room},
		{"Synced:", cursor},
		{"Sending:", fmt.Sprint(d.Sending)},
		{"Uptime:", formatDuration(d.Uptime)},
	}
	fg, counter := Tag(pi.theme.FgColor), Tag(pi.theme.CounterColor)
	for i, r := range rows {
		if i > 0 {
			_, _ = fmt.Fprintln(pi)
		}
		_, _ = fmt.Fprintf(pi, "[%s::b]%-9s[-:-:-][%s]%s[-]", fg, r[0], counter, tview.Escape(r[1]))
	}
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
