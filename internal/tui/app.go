// Package tui is the terminal client. It runs the sync engine in-process
// and renders it with tview.
package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/lostfound/chatsync/internal/tui/keys"
	"github.com/lostfound/chatsync/internal/tui/model"
	"github.com/lostfound/chatsync/internal/tui/ui"
	"github.com/lostfound/chatsync/internal/tui/views"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

const (
	roomsTimeout = 15 * time.Second
	tickInterval = time.Second
)

// App is the TUI shell.
type App struct {
	app      *tview.Application
	vm       *model.ViewModel
	logger   *zap.Logger
	profile  string
	started  time.Time
	theme    *ui.Theme
	registry *keys.Registry

	root     *tview.Flex
	pages    *ui.Pages
	prompt   *ui.Prompt
	flashBar *ui.FlashBar
	crumbs   *ui.Crumbs
	menu     *ui.Menu
	info     *ui.ProfileInfo

	rooms   *views.RoomList
	thread  *views.MessageThread
	search  *views.SearchView
	details *views.RoomInfo
	help    *views.HelpView
	qr      *views.QRView

	promptOpen bool
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewApp builds the TUI around vm.
func NewApp(vm *model.ViewModel, profile string, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	theme := ui.DefaultTheme()
	a := &App{
		app:      tview.NewApplication(),
		vm:       vm,
		logger:   logger.Named("tui"),
		profile:  profile,
		started:  time.Now(),
		theme:    theme,
		registry: keys.NewRegistry(),
		pages:    ui.NewPages(),
		prompt:   ui.NewPrompt(theme),
		flashBar: ui.NewFlashBar(theme),
		crumbs:   ui.NewCrumbs(theme),
		menu:     ui.NewMenu(theme),
		info:     ui.NewProfileInfo(theme),
		rooms:    views.NewRoomList(theme),
		thread:   views.NewMessageThread(theme, vm.Self().Email),
		search:   views.NewSearchView(theme),
		details:  views.NewRoomInfo(theme),
		help:     views.NewHelpView(theme),
		qr:       views.NewQRView(theme),
	}

	a.setupLayout()
	a.setupCallbacks()
	a.setupBindings()
	return a
}

func (a *App) setupLayout() {
	for _, c := range []ui.Component{a.rooms, a.thread, a.search, a.details, a.help, a.qr} {
		a.pages.Add(c)
	}
	a.pages.SetOnChange(func(top ui.Component, crumbs []string) {
		a.crumbs.Update(crumbs)
		if top != nil {
			a.menu.Update(top.Hints())
			a.app.SetFocus(top.FocusTarget())
		}
	})

	header := tview.NewFlex().
		AddItem(ui.NewLogo(a.theme), 20, 0, false).
		AddItem(a.info, 0, 1, false).
		AddItem(a.menu, 0, 1, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 8, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.flashBar, 1, 0, false)
	a.root.SetBackgroundColor(a.theme.BgColor)

	a.app.SetRoot(a.root, true)
	a.pages.Reset(a.rooms.Name())
}

func (a *App) setupCallbacks() {
	a.rooms.SetSelectedFunc(func(row, _ int) {
		if id := a.rooms.RoomByIndex(row); id != "" {
			a.openRoom(id)
		}
	})

	a.thread.SetOnSend(func(text string) {
		if err := a.vm.Send(text); err != nil {
			a.vm.Flash.Err(err)
		}
	})

	a.search.SetOnQuery(a.runSearch)
	a.search.Results().SetSelectedFunc(func(int, int) {
		roomID, _ := a.search.SelectedResult()
		if roomID != "" {
			a.openRoom(roomID)
		}
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.closePrompt()
		switch mode {
		case ui.PromptCommand:
			a.runCommand(text)
		case ui.PromptFilter:
			a.rooms.SetFilter(text)
		}
	})
	a.prompt.SetOnCancel(a.closePrompt)
}

func (a *App) setupBindings() {
	a.registry.Global(
		keys.Rune(':', func() { a.openPrompt(ui.PromptCommand) }),
		keys.Rune('?', func() { a.pages.Push(a.help.Name()) }),
		keys.Key(tcell.KeyEscape, a.back),
	)

	a.registry.Page(a.rooms.Name(),
		keys.Rune('/', func() { a.openPrompt(ui.PromptFilter) }),
		keys.Rune('r', func() { go a.loadRooms() }),
		keys.Rune('q', a.Stop),
	)
	a.registry.Digits(a.rooms.Name(), func(n int) {
		if n == 0 {
			a.rooms.ClearFilter()
			return
		}
		if id := a.rooms.RoomByIndex(n); id != "" {
			a.openRoom(id)
		}
	})

	a.registry.Page(a.thread.Name(),
		keys.Rune('i', func() { a.app.SetFocus(a.thread.Composer()) }),
		keys.Rune('d', a.showDetails),
		keys.Rune('r', a.syncNow),
	)
	a.registry.Page(a.search.Name(),
		keys.Key(tcell.KeyTab, func() { a.app.SetFocus(a.search.Results()) }),
	)

	a.app.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if ev.Key() == tcell.KeyCtrlC {
			a.Stop()
			return nil
		}
		if a.promptOpen {
			return ev
		}
		if field, ok := a.app.GetFocus().(*tview.InputField); ok {
			if ev.Key() == tcell.KeyEscape && field == a.thread.Composer() {
				a.app.SetFocus(a.thread.Messages())
				return nil
			}
			if ev.Key() != tcell.KeyEscape {
				return ev
			}
		}
		if a.registry.Handle(a.pages.Current(), ev) {
			return nil
		}
		return ev
	})
}

func (a *App) openPrompt(mode ui.PromptMode) {
	a.prompt.Activate(mode)
	a.promptOpen = true
	a.root.AddItem(a.prompt, 3, 0, true)
	a.app.SetFocus(a.prompt)
}

func (a *App) closePrompt() {
	if !a.promptOpen {
		return
	}
	a.promptOpen = false
	a.root.RemoveItem(a.prompt)
	if top := a.pages.Top(); top != nil {
		a.app.SetFocus(top.FocusTarget())
	}
}

func (a *App) back() {
	if a.pages.Current() == a.rooms.Name() {
		if a.rooms.Filter() != "" {
			a.rooms.ClearFilter()
		}
		return
	}
	if a.pages.Pop() == a.thread.Name() {
		a.vm.Close()
		a.rooms.Update(a.vm.Rooms(), a.vm.Offline())
	}
}

func (a *App) openRoom(id string) {
	if err := a.vm.Open(id); err != nil {
		a.vm.Flash.Err(err)
		return
	}
	a.refresh()
	a.pages.Reset(a.rooms.Name())
	a.pages.Push(a.thread.Name())
}

func (a *App) showDetails() {
	snap := a.vm.Snapshot()
	if snap.Room == nil {
		return
	}
	row, ok := a.vm.Room(snap.Room.ID)
	if !ok {
		row = model.RoomRow{Room: *snap.Room}
	}
	a.details.Update(row, views.RoomStats{
		Messages: len(snap.Messages),
		Cursor:   snap.Cursor,
		State:    string(snap.State),
	})
	a.pages.Push(a.details.Name())
}

func (a *App) syncNow() {
	if !a.vm.Refresh() {
		a.vm.Flash.Warn("sync already running")
	}
}

func (a *App) runSearch(query string) {
	go func() {
		results, err := a.vm.Search(query)
		a.app.QueueUpdateDraw(func() {
			if err != nil {
				a.vm.Flash.Err(fmt.Errorf("search: %w", err))
				return
			}
			a.search.Update(results)
			a.app.SetFocus(a.search.Results())
		})
	}()
}

func (a *App) showQR(msgID string) {
	if msgID == "" {
		m, ok := a.vm.LatestAttachment()
		if !ok {
			a.vm.Flash.Warn("no attachment in this room")
			return
		}
		a.qr.Show(m.Attachment.FileName, m.Attachment.URL)
		a.pages.Push(a.qr.Name())
		return
	}
	att, err := a.vm.Attachment(msgID)
	if err != nil {
		a.vm.Flash.Err(err)
		return
	}
	a.qr.Show(att.FileName, att.URL)
	a.pages.Push(a.qr.Name())
}

func (a *App) runCommand(line string) {
	cmd, err := ParseCommand(line)
	if err != nil {
		a.vm.Flash.Err(err)
		return
	}
	switch cmd.Name {
	case "open":
		row, ok := a.vm.FindRoom(cmd.Args)
		if !ok {
			a.vm.Flash.Err(fmt.Errorf("no room matches %q", cmd.Args))
			return
		}
		a.openRoom(row.ID)
	case "rooms":
		a.vm.Close()
		a.pages.Reset(a.rooms.Name())
	case "file":
		if err := a.vm.SendFile(cmd.Args); err != nil {
			a.vm.Flash.Err(err)
			return
		}
		a.vm.Flash.Info("uploading " + cmd.Args)
	case "search":
		a.search.SetQuery(cmd.Args)
		a.pages.Push(a.search.Name())
		a.runSearch(cmd.Args)
	case "qr":
		a.showQR(cmd.Args)
	case "sync":
		a.syncNow()
	case "help":
		a.pages.Push(a.help.Name())
	case "quit":
		a.Stop()
	}
}

func (a *App) loadRooms() {
	ctx, cancel := context.WithTimeout(a.ctx, roomsTimeout)
	defer cancel()
	err := a.vm.LoadRooms(ctx)
	if err != nil {
		a.logger.Warn("load rooms failed", zap.Error(err))
	}
	a.app.QueueUpdateDraw(func() {
		if err != nil {
			a.vm.Flash.Err(fmt.Errorf("load rooms: %w", err))
			return
		}
		a.rooms.Update(a.vm.Rooms(), a.vm.Offline())
		if a.vm.Offline() {
			a.vm.Flash.Warn("backend unreachable, showing archived rooms")
		}
	})
}

// refresh redraws everything derived from engine state. It must run on the
// tview goroutine.
func (a *App) refresh() {
	snap := a.vm.Snapshot()
	a.thread.Update(snap)
	if a.thread.Composer().GetText() == "" {
		if draft := a.vm.TakeDraft(); draft != "" {
			a.thread.RestoreDraft(draft)
		}
	}

	room := ""
	if snap.Room != nil {
		room = snap.Room.DisplayName()
	}
	a.info.Update(ui.ProfileData{
		Profile: a.profile,
		User:    a.vm.Self().Email,
		State:   string(snap.State),
		Room:    room,
		Cursor:  snap.Cursor,
		Sending: snap.Sending,
		Offline: a.vm.Offline(),
		Uptime:  time.Since(a.started),
	})
	a.flashBar.Update(a.vm.Flash.Current())
}

func (a *App) watch() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-a.vm.Updates():
		case <-a.vm.Flash.Changed():
		case <-ticker.C:
		}
		a.app.QueueUpdateDraw(a.refresh)
	}
}

// Run blocks until the user quits or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)
	defer a.cancel()

	a.vm.Start(a.ctx)
	defer a.vm.Stop()

	go func() {
		a.loadRooms()
		if id := a.vm.LastRoom(); id != "" {
			a.app.QueueUpdateDraw(func() {
				if _, ok := a.vm.Room(id); ok {
					a.openRoom(id)
				}
			})
		}
	}()
	go a.watch()
	go func() {
		<-a.ctx.Done()
		a.app.Stop()
	}()

	a.refresh()
	return a.app.Run()
}

// Stop ends Run.
func (a *App) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
}
