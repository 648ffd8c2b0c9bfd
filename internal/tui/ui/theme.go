package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
)

// Theme holds the TUI colors.
type Theme struct {
	BgColor           tcell.Color
	FgColor           tcell.Color
	BorderColor       tcell.Color
	BorderFocusColor  tcell.Color
	TableHeaderFg     tcell.Color
	TableHeaderBg     tcell.Color
	TableCursorFg     tcell.Color
	TableCursorBg     tcell.Color
	CrumbActiveFg     tcell.Color
	CrumbActiveBg     tcell.Color
	CrumbInactiveFg   tcell.Color
	CrumbInactiveBg   tcell.Color
	MenuKeyColor      tcell.Color
	NumericKeyColor   tcell.Color
	TitleColor        tcell.Color
	CounterColor      tcell.Color
	FlashInfoColor    tcell.Color
	FlashWarnColor    tcell.Color
	FlashErrColor     tcell.Color
	PromptBorderColor tcell.Color

	// Message thread.
	SelfColor    tcell.Color
	PartnerColor tcell.Color
	PendingColor tcell.Color
	FailedColor  tcell.Color
	FileColor    tcell.Color
}

// DefaultTheme returns the dark theme.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:           tcell.ColorBlack,
		FgColor:           tcell.ColorLightGray,
		BorderColor:       tcell.ColorTeal,
		BorderFocusColor:  tcell.ColorAqua,
		TableHeaderFg:     tcell.ColorWhite,
		TableHeaderBg:     tcell.ColorBlack,
		TableCursorFg:     tcell.ColorBlack,
		TableCursorBg:     tcell.ColorMediumAquamarine,
		CrumbActiveFg:     tcell.ColorBlack,
		CrumbActiveBg:     tcell.ColorGold,
		CrumbInactiveFg:   tcell.ColorBlack,
		CrumbInactiveBg:   tcell.ColorTeal,
		MenuKeyColor:      tcell.ColorAqua,
		NumericKeyColor:   tcell.ColorGold,
		TitleColor:        tcell.ColorGold,
		CounterColor:      tcell.ColorWhite,
		FlashInfoColor:    tcell.ColorPaleGreen,
		FlashWarnColor:    tcell.ColorOrange,
		FlashErrColor:     tcell.ColorOrangeRed,
		PromptBorderColor: tcell.ColorAqua,
		SelfColor:         tcell.ColorMediumAquamarine,
		PartnerColor:      tcell.ColorGold,
		PendingColor:      tcell.ColorGray,
		FailedColor:       tcell.ColorOrangeRed,
		FileColor:         tcell.ColorSkyblue,
	}
}

// Tag returns c as a tview color tag value, e.g. "#ffd700".
func Tag(c tcell.Color) string {
	return fmt.Sprintf("#%06x", c.Hex())
}
