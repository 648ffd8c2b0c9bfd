package views

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/lostfound/chatsync/internal/tui/model"
	"github.com/lostfound/chatsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// RoomList is the table of the user's rooms.
type RoomList struct {
	*tview.Table
	theme   *ui.Theme
	rows    []model.RoomRow
	visible []model.RoomRow
	filter  string
	offline bool
}

// NewRoomList creates an empty room list.
func NewRoomList(theme *ui.Theme) *RoomList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitleColor(theme.TitleColor)

	rl := &RoomList{Table: table, theme: theme}
	rl.render()
	return rl
}

// Name implements ui.Component.
func (rl *RoomList) Name() string { return "Rooms" }

// FocusTarget implements ui.Component.
func (rl *RoomList) FocusTarget() tview.Primitive { return rl.Table }

// Hints implements ui.Component.
func (rl *RoomList) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Open"},
		{Key: "/", Description: "Filter"},
		{Key: ":", Description: "Command"},
		{Key: "r", Description: "Reload"},
		{Key: "?", Description: "Help"},
		{Key: "q", Description: "Quit"},
		{Key: "1-9", Description: "Jump", Numeric: true},
	}
}

// Update replaces the rows. offline marks rows that came from the archive.
func (rl *RoomList) Update(rows []model.RoomRow, offline bool) {
	rl.rows = rows
	rl.offline = offline
	rl.render()
}

// SetFilter narrows the list to rooms matching filter.
func (rl *RoomList) SetFilter(filter string) {
	rl.filter = filter
	rl.render()
}

// ClearFilter shows all rooms again.
func (rl *RoomList) ClearFilter() {
	rl.SetFilter("")
}

// Filter returns the active filter.
func (rl *RoomList) Filter() string { return rl.filter }

func (rl *RoomList) matches(r model.RoomRow) bool {
	if rl.filter == "" {
		return true
	}
	return containsFold(r.DisplayName(), rl.filter) ||
		containsFold(r.PartnerEmail, rl.filter) ||
		containsFold(r.Preview, rl.filter)
}

func (rl *RoomList) render() {
	rl.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" PARTNER", 1},
		{" LAST MESSAGE", 2},
		{" TIME", 0},
		{" STATUS", 0},
	}
	for col, h := range headers {
		rl.SetCell(0, col, tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(rl.theme.TableHeaderFg).
			SetBackgroundColor(rl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp))
	}

	rl.visible = rl.visible[:0]
	for _, r := range rl.rows {
		if !rl.matches(r) {
			continue
		}
		rl.visible = append(rl.visible, r)
		row := len(rl.visible)
		status := r.Status
		if status == "" {
			status = "-"
		}
		rl.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(r.DisplayName()))).SetExpansion(1).SetTextColor(rl.theme.FgColor))
		rl.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(r.Preview))).SetExpansion(2).SetTextColor(rl.theme.FgColor))
		rl.SetCell(row, 2, tview.NewTableCell(formatTimestamp(r.LastMessageAt)).SetTextColor(rl.theme.FgColor).SetAlign(tview.AlignRight))
		rl.SetCell(row, 3, tview.NewTableCell(" "+tview.Escape(status)).SetTextColor(rl.theme.FgColor).SetAlign(tview.AlignRight))
	}

	title := fmt.Sprintf(" Rooms (%d) ", len(rl.rows))
	if rl.filter != "" {
		title = fmt.Sprintf(" Rooms (%d/%d) filter: %s ", len(rl.visible), len(rl.rows), tview.Escape(rl.filter))
	}
	if rl.offline {
		title += "[offline] "
	}
	rl.SetTitle(title)
}

// SelectedRoom returns the ID of the highlighted room.
func (rl *RoomList) SelectedRoom() string {
	row, _ := rl.GetSelection()
	return rl.RoomByIndex(row)
}

// RoomByIndex returns the ID of the Nth visible room, 1-based.
func (rl *RoomList) RoomByIndex(n int) string {
	if n < 1 || n > len(rl.visible) {
		return ""
	}
	return rl.visible[n-1].ID
}
