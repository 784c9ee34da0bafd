package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tagrade/tagrade/internal/errors"
)

// ExitInterrupted is the process exit status after an interrupt.
const ExitInterrupted = 130

// ErrInterrupted is returned by Run when a signal stopped the command.
var ErrInterrupted = errors.New("interrupted")

type notifyFunc func(c chan<- os.Signal, sig ...os.Signal)

func signalNotify(c chan<- os.Signal, sig ...os.Signal) {
	signal.Notify(c, sig...)
}

// Run executes fn with a context that is cancelled on SIGINT, SIGHUP or
// SIGTERM. After a signal, Run waits up to the configured grace period for
// fn's deferred releases, then removes every lock recorded for this holder
// and returns an error matching ErrInterrupted. A second signal skips the
// rest of the grace period.
func (a *App) Run(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	a.notify(sigCh, syscall.SIGINT, syscall.SIGHUP, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case sig := <-sigCh:
		a.Logger.Warn("interrupted, releasing locks", "signal", sig.String())
		cancel()

		var fnErr error
		grace := time.NewTimer(a.Config.Signals.Grace())
		defer grace.Stop()
		select {
		case fnErr = <-done:
		case <-grace.C:
			a.Logger.Warn("command did not stop within the grace period")
		case <-sigCh:
			a.Logger.Warn("second signal, not waiting any longer")
		}

		return errors.Join(ErrInterrupted, fnErr, a.Recover())
	}
}

// Recover removes every lock held by this holder. Failures on individual
// artifacts do not stop the rest.
func (a *App) Recover() error {
	n, err := a.Admin.ReleaseHolder(a.Holder)
	if n > 0 || err != nil {
		a.Logger.Info("recovered locks after interrupt", "count", n, "error", err)
	}
	return err
}
