package views

import (
	"fmt"
	"strings"

	"github.com/lostfound/chatsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// HelpView lists the key bindings and commands.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates the help page.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{TextView: tv, theme: theme}
	hv.render()
	return hv
}

// Name implements ui.Component.
func (hv *HelpView) Name() string { return "Help" }

// FocusTarget implements ui.Component.
func (hv *HelpView) FocusTarget() tview.Primitive { return hv.TextView }

// Hints implements ui.Component.
func (hv *HelpView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

type helpEntry struct{ key, text string }

var helpSections = []struct {
	title   string
	entries []helpEntry
}{
	{"Global keys", []helpEntry{
		{":", "Command mode"},
		{"/", "Filter rooms"},
		{"?", "This help"},
		{"Esc", "Cancel or go back"},
		{"q", "Quit from the room list"},
		{"Ctrl-C", "Quit immediately"},
	}},
	{"Room list", []helpEntry{
		{"Enter", "Open room"},
		{"1-9", "Open the Nth room"},
		{"0", "Clear filter"},
		{"r", "Reload rooms"},
	}},
	{"Room", []helpEntry{
		{"i", "Focus composer"},
		{"Enter", "Send (in composer)"},
		{"Esc", "Leave composer"},
		{"d", "Room details"},
		{"r", "Sync now"},
	}},
	{"Commands", []helpEntry{
		{":open <name|email|id>", "Open a room"},
		{":rooms", "Back to the room list"},
		{":file <path>", "Send a file to the open room"},
		{":search <text>", "Search the archive"},
		{":qr [message id]", "QR code for an attachment link"},
		{":sync", "Poll the open room now"},
		{":help", "This help"},
		{":quit", "Quit"},
	}},
}

func (hv *HelpView) render() {
	kc := ui.Tag(hv.theme.MenuKeyColor)
	var b strings.Builder
	for _, s := range helpSections {
		fmt.Fprintf(&b, "\n  [::b]%s[-:-:-]\n\n", s.title)
		for _, e := range s.entries {
			fmt.Fprintf(&b, "  [%s]%-24s[-:-:-] %s\n", kc, tview.Escape(e.key), e.text)
		}
	}
	_, _ = fmt.Fprint(hv, b.String())
}
