package views

import (
	"fmt"

	"github.com/lostfound/chatsync/internal/qrtext"
	"github.com/lostfound/chatsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// QRView shows a link as a QR code so an attachment can be opened on a
// phone.
type QRView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewQRView creates an empty QR page.
func NewQRView(theme *ui.Theme) *QRView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Attachment ")
	tv.SetTitleColor(theme.TitleColor)

	return &QRView{TextView: tv, theme: theme}
}

// Name implements ui.Component.
func (qv *QRView) Name() string { return "QR" }

// FocusTarget implements ui.Component.
func (qv *QRView) FocusTarget() tview.Primitive { return qv.TextView }

// Hints implements ui.Component.
func (qv *QRView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

// Show renders url as a QR code under label.
func (qv *QRView) Show(label, url string) {
	qv.Clear()
	code, err := qrtext.Render(url, "  ")
	if err != nil {
		_, _ = fmt.Fprintf(qv, "\n\n[%s]%s[-]", ui.Tag(qv.theme.FlashErrColor), tview.Escape(err.Error()))
		return
	}
	_, _ = fmt.Fprintf(qv, "\n  %s\n\n%s\n  [::d]%s[-:-:-]",
		tview.Escape(sanitizeForTerminal(label)), code, tview.Escape(url))
}
