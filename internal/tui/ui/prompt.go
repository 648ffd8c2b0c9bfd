package ui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// PromptMode is what a submitted prompt line means.
type PromptMode int

const (
	PromptCommand PromptMode = iota
	PromptFilter
)

const promptHistory = 50

// Prompt is the ":" command and "/" filter input. Up and Down recall
// earlier commands.
type Prompt struct {
	*tview.InputField
	theme    *Theme
	mode     PromptMode
	history  []string
	recall   int
	onSubmit func(mode PromptMode, text string)
	onCancel func()
}

// NewPrompt creates a prompt.
func NewPrompt(theme *Theme) *Prompt {
	input := tview.NewInputField()
	input.SetBorder(true)
	input.SetBorderColor(theme.PromptBorderColor)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)

	p := &Prompt{InputField: input, theme: theme}

	input.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			text := p.GetText()
			p.SetText("")
			if text == "" {
				return
			}
			if p.mode == PromptCommand {
				p.remember(text)
			}
			if p.onSubmit != nil {
				p.onSubmit(p.mode, text)
			}
		case tcell.KeyEscape:
			p.SetText("")
			if p.onCancel != nil {
				p.onCancel()
			}
		}
	})
	input.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if p.mode != PromptCommand {
			return ev
		}
		switch ev.Key() {
		case tcell.KeyUp:
			p.step(-1)
			return nil
		case tcell.KeyDown:
			p.step(1)
			return nil
		}
		return ev
	})

	return p
}

func (p *Prompt) remember(text string) {
	if n := len(p.history); n == 0 || p.history[n-1] != text {
		p.history = append(p.history, text)
	}
	if len(p.history) > promptHistory {
		p.history = p.history[len(p.history)-promptHistory:]
	}
	p.recall = len(p.history)
}

func (p *Prompt) step(delta int) {
	i := p.recall + delta
	if i < 0 || i > len(p.history) {
		return
	}
	p.recall = i
	if i == len(p.history) {
		p.SetText("")
		return
	}
	p.SetText(p.history[i])
}

// SetOnSubmit sets the callback for a submitted line.
func (p *Prompt) SetOnSubmit(fn func(mode PromptMode, text string)) {
	p.onSubmit = fn
}

// SetOnCancel sets the callback for Esc.
func (p *Prompt) SetOnCancel(fn func()) {
	p.onCancel = fn
}

// Activate prepares the prompt for input in the given mode.
func (p *Prompt) Activate(mode PromptMode) {
	p.mode = mode
	p.recall = len(p.history)
	p.SetText("")
	switch mode {
	case PromptCommand:
		p.SetLabel(":")
		p.SetTitle(" Command ")
	case PromptFilter:
		p.SetLabel("/")
		p.SetTitle(" Filter ")
	}
}

// Mode returns the active mode.
func (p *Prompt) Mode() PromptMode {
	return p.mode
}
