// Package tui is the interactive lock browser: a live list of every lock in
// the class, refreshed whenever the locks directory changes, with filtering
// and confirmed forced removal.
package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tagrade/tagrade/internal/errors"
	"github.com/tagrade/tagrade/internal/watcher"
)

const watchID = "tui.locks"

// App wraps the Bubbletea program.
type App struct {
	model   Model
	watcher *watcher.Watcher
	dir     string
}

// New creates the browser. w, when non-nil, is registered on dir and run
// for the lifetime of the program.
func New(model Model, w *watcher.Watcher, dir string) *App {
	return &App{model: model, watcher: w, dir: dir}
}

// Run starts the program and blocks until the user quits or ctx is done.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(a.model, tea.WithAltScreen(), tea.WithContext(ctx))

	if a.watcher != nil {
		if err := a.watcher.Register(watchID, a.dir, func(string) {
			program.Send(LocksChangedMsg{})
		}); err != nil {
			return err
		}
		defer a.watcher.Unregister(watchID)
		go func() { _ = a.watcher.Run(ctx) }()
	}

	_, err := program.Run()
	if ctx.Err() != nil && errors.Is(err, tea.ErrProgramKilled) {
		return ctx.Err()
	}
	return err
}
