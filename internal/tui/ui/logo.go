package ui

import (
	"fmt"

	"github.com/rivo/tview"
)

// Logo is the header logo.
type Logo struct {
	*tview.TextView
}

// NewLogo renders the logo.
func NewLogo(theme *Theme) *Logo {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(1, 0, 1, 0)

	title, fg := Tag(theme.TitleColor), Tag(theme.FgColor)
	_, _ = fmt.Fprintf(tv,
		"[%s::b]┓    ┏┓      ┓[-:-:-]\n"+
			"[%s::b]┃┏┓┏╋┣ ┏┓┓┏┏┓┏┫[-:-:-]\n"+
			"[%s::b]┗┗┛┛┗┻ ┗┛┗┻┛┗┗┻[-:-:-]\n"+
			"[%s]chat sync[-:-:-]",
		title, title, title, fg,
	)
	return &Logo{TextView: tv}
}
