package views

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/lostfound/chatsync/internal/store"
	"github.com/lostfound/chatsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// SearchView searches the local archive.
type SearchView struct {
	*tview.Flex
	theme   *ui.Theme
	input   *tview.InputField
	results *tview.Table
	onQuery func(query string)
	data    []store.SearchResult
}

// NewSearchView creates an empty search view.
func NewSearchView(theme *ui.Theme) *SearchView {
	input := tview.NewInputField().
		SetLabel(" Search: ").
		SetFieldWidth(0)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)

	results := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	results.SetBorder(true)
	results.SetBorderColor(theme.BorderColor)
	results.SetBackgroundColor(theme.BgColor)
	results.SetTitle(" Results ")
	results.SetTitleColor(theme.TitleColor)
	results.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(input, 1, 0, true).
		AddItem(results, 0, 1, false)

	sv := &SearchView{
		Flex:    flex,
		theme:   theme,
		input:   input,
		results: results,
	}
	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && sv.onQuery != nil && sv.input.GetText() != "" {
			sv.onQuery(sv.input.GetText())
		}
	})
	return sv
}

// Name implements ui.Component.
func (sv *SearchView) Name() string { return "Search" }

// FocusTarget implements ui.Component.
func (sv *SearchView) FocusTarget() tview.Primitive { return sv.input }

// Hints implements ui.Component.
func (sv *SearchView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Search/Open"},
		{Key: "Tab", Description: "Results"},
		{Key: "Esc", Description: "Back"},
	}
}

// SetOnQuery sets the callback for a submitted query.
func (sv *SearchView) SetOnQuery(fn func(query string)) {
	sv.onQuery = fn
}

// SetQuery fills the input without running the query.
func (sv *SearchView) SetQuery(q string) {
	sv.input.SetText(q)
}

// Update renders results.
func (sv *SearchView) Update(results []store.SearchResult) {
	sv.data = results
	sv.results.Clear()

	headers := []string{" ROOM", " FROM", " SNIPPET", " TIME"}
	for col, h := range headers {
		sv.results.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(sv.theme.TableHeaderFg).
			SetBackgroundColor(sv.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold))
	}

	for i, r := range results {
		row := i + 1
		sv.results.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(r.Message.RoomID)).SetMaxWidth(20).SetTextColor(sv.theme.FgColor))
		sv.results.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(r.Message.SenderEmail)).SetMaxWidth(25).SetTextColor(sv.theme.FgColor))
		sv.results.SetCell(row, 2, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(r.Snippet))).SetExpansion(1).SetTextColor(sv.theme.FgColor))
		sv.results.SetCell(row, 3, tview.NewTableCell(" "+formatTimestamp(r.Message.Timestamp)).SetMaxWidth(12).SetTextColor(sv.theme.FgColor))
	}
	sv.results.SetTitle(fmt.Sprintf(" Results (%d) ", len(results)))
}

// SelectedResult returns the room and message ID of the highlighted result.
func (sv *SearchView) SelectedResult() (roomID, msgID string) {
	row, _ := sv.results.GetSelection()
	idx := row - 1
	if idx < 0 || idx >= len(sv.data) {
		return "", ""
	}
	m := sv.data[idx].Message
	return m.RoomID, m.MsgID
}

// Input returns the query field.
func (sv *SearchView) Input() *tview.InputField {
	return sv.input
}

// Results returns the results table.
func (sv *SearchView) Results() *tview.Table {
	return sv.results
}
