package views

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/lostfound/chatsync/internal/chat"
	"github.com/lostfound/chatsync/internal/status"
	intsync "github.com/lostfound/chatsync/internal/sync"
	"github.com/lostfound/chatsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// MessageThread shows the active room and a composer.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	composer *tview.InputField
	roomName string
	roomID   string
	self     string
	onSend   func(text string)
}

// NewMessageThread creates an empty thread. self is the user's email, used
// to tell own messages apart.
func NewMessageThread(theme *ui.Theme, self string) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.TitleColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus, :file <path> to attach) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(composer, 3, 0, false)

	mt := &MessageThread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		composer: composer,
		self:     self,
	}

	composer.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || mt.onSend == nil {
			return
		}
		text := composer.GetText()
		if strings.TrimSpace(text) == "" {
			return
		}
		composer.SetText("")
		mt.onSend(text)
	})

	return mt
}

// Name implements ui.Component.
func (mt *MessageThread) Name() string { return "Messages" }

// Crumb implements ui.Labeled.
func (mt *MessageThread) Crumb() string {
	if mt.roomName != "" {
		return mt.roomName
	}
	return mt.Name()
}

// FocusTarget implements ui.Component.
func (mt *MessageThread) FocusTarget() tview.Primitive { return mt.messages }

// Hints implements ui.Component.
func (mt *MessageThread) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "i", Description: "Compose"},
		{Key: "d", Description: "Details"},
		{Key: "r", Description: "Sync now"},
		{Key: "Esc", Description: "Back"},
		{Key: ":", Description: "Command"},
		{Key: "?", Description: "Help"},
	}
}

// SetOnSend sets the callback for a submitted composer line.
func (mt *MessageThread) SetOnSend(fn func(text string)) {
	mt.onSend = fn
}

// RoomID returns the room the thread was last rendered for.
func (mt *MessageThread) RoomID() string { return mt.roomID }

// RestoreDraft puts text back into an empty composer. It reports whether
// the text was placed.
func (mt *MessageThread) RestoreDraft(text string) bool {
	if text == "" || mt.composer.GetText() != "" {
		return false
	}
	mt.composer.SetText(text)
	return true
}

// Update renders snap.
func (mt *MessageThread) Update(snap *intsync.Snapshot) {
	mt.messages.Clear()
	if snap.Room == nil {
		mt.roomName, mt.roomID = "", ""
		mt.messages.SetTitle(" Messages ")
		return
	}

	mt.roomName = snap.Room.DisplayName()
	mt.roomID = snap.Room.ID
	mt.messages.SetTitle(fmt.Sprintf(" %s %s", tview.Escape(mt.roomName), mt.stateBadge(snap)))

	switch {
	case snap.State == status.Loading && len(snap.Messages) == 0:
		_, _ = fmt.Fprintf(mt.messages, "[%s]Loading history...[-]", ui.Tag(mt.theme.PendingColor))
		return
	case snap.State == status.LoadFailed:
		msg := "could not load history"
		if snap.Err != nil {
			msg += ": " + snap.Err.Error()
		}
		_, _ = fmt.Fprintf(mt.messages, "[%s]%s[-]\n[%s]press r to retry[-]\n\n",
			ui.Tag(mt.theme.FailedColor), tview.Escape(msg), ui.Tag(mt.theme.PendingColor))
	}

	for _, m := range snap.Messages {
		mt.writeMessage(m)
	}
	mt.messages.ScrollToEnd()
}

func (mt *MessageThread) stateBadge(snap *intsync.Snapshot) string {
	var parts []string
	if snap.Polling {
		parts = append(parts, "syncing")
	}
	if snap.Sending > 0 {
		parts = append(parts, fmt.Sprintf("sending %d", snap.Sending))
	}
	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, ", ") + ") "
}

func (mt *MessageThread) writeMessage(m chat.Message) {
	sender, color := m.SenderEmail, mt.theme.PartnerColor
	if m.SenderEmail == mt.self {
		sender, color = "You", mt.theme.SelfColor
	}

	mark := ""
	switch m.State {
	case chat.Pending:
		mark = fmt.Sprintf(" [%s]sending[-]", ui.Tag(mt.theme.PendingColor))
	case chat.Failed:
		mark = fmt.Sprintf(" [%s]failed[-]", ui.Tag(mt.theme.FailedColor))
	}

	_, _ = fmt.Fprintf(mt.messages, "[%s::b]%s[-:-:-] [::d]%s[-:-:-]%s\n",
		ui.Tag(color), tview.Escape(sanitizeForTerminal(sender)), formatTimestamp(m.Timestamp), mark)
	if m.Body != "" {
		_, _ = fmt.Fprintf(mt.messages, "%s\n", tview.Escape(sanitizeForTerminal(m.Body)))
	}
	if a := m.Attachment; a != nil {
		_, _ = fmt.Fprintf(mt.messages, "[%s]file: %s (%s)[-]\n",
			ui.Tag(mt.theme.FileColor), tview.Escape(sanitizeForTerminal(a.FileName)), humanSize(a.SizeBytes))
	}
	_, _ = fmt.Fprintln(mt.messages)
}

// Messages returns the message pane.
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

// Composer returns the input field.
func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}
