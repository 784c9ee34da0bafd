// Package app builds the per-process context every command works from: the
// configuration, resolved directory layout, holder identity, logger, event
// bus, metrics, lock store, grading workflow and admin tools. One App is
// constructed per invocation and passed explicitly.
package app

import (
	"fmt"
	"os"
	"os/user"
	"sync"

	"github.com/tagrade/tagrade/internal/admin"
	"github.com/tagrade/tagrade/internal/config"
	"github.com/tagrade/tagrade/internal/datadir"
	"github.com/tagrade/tagrade/internal/errors"
	"github.com/tagrade/tagrade/internal/event"
	"github.com/tagrade/tagrade/internal/grading"
	"github.com/tagrade/tagrade/internal/lock"
	"github.com/tagrade/tagrade/internal/logging"
	"github.com/tagrade/tagrade/internal/metrics"
	"github.com/tagrade/tagrade/internal/platform"
	"github.com/tagrade/tagrade/internal/roster"
	"github.com/tagrade/tagrade/internal/watcher"
)

// App is the explicit process context.
type App struct {
	Config   *config.Config
	Layout   datadir.Layout
	Holder   string
	Logger   *logging.Logger
	Bus      *event.Bus
	Metrics  *metrics.Collector
	Store    *lock.Store
	Workflow *grading.Workflow
	Admin    *admin.Admin

	fetcher grading.Fetcher
	notify  notifyFunc

	rosterOnce sync.Once
	roster     *roster.Roster
	rosterErr  error

	closeOnce sync.Once
}

// Option configures an App.
type Option func(*App)

// WithHolder overrides the holder identity.
func WithHolder(holder string) Option {
	return func(a *App) {
		a.Holder = holder
	}
}

// WithLogger uses logger instead of opening the per-holder log file.
func WithLogger(logger *logging.Logger) Option {
	return func(a *App) {
		a.Logger = logger
	}
}

// WithFetcher replaces the HTTP submission client.
func WithFetcher(f grading.Fetcher) Option {
	return func(a *App) {
		a.fetcher = f
	}
}

// New wires every component from cfg.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	layout, err := datadir.Resolve(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config: cfg,
		Layout: layout,
		Holder: cfg.Locks.Holder,
		notify: signalNotify,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.Holder == "" {
		if a.Holder, err = CurrentUser(); err != nil {
			return nil, err
		}
	}

	if a.Logger == nil {
		a.Logger = newLogger(cfg, layout, a.Holder)
	}
	a.Logger = a.Logger.WithHolder(a.Holder)

	a.Bus = event.NewBus(a.Logger)
	a.Metrics = metrics.New()
	a.Metrics.Attach(a.Bus)

	a.Store = lock.NewStore(layout.LocksDir, lock.WithLogger(a.Logger))

	if a.fetcher == nil && cfg.Fetch.BaseURL != "" {
		client, err := platform.NewClient(cfg.Fetch.BaseURL, layout,
			platform.WithToken(cfg.Fetch.Token),
			platform.WithTimeout(cfg.Fetch.Timeout()),
			platform.WithLogger(a.Logger),
		)
		if err != nil {
			return nil, err
		}
		a.fetcher = client
	}

	wfOpts := []grading.Option{
		grading.WithBus(a.Bus),
		grading.WithLogger(a.Logger),
		grading.WithRetry(cfg.Fetch.MaxAttempts, cfg.Fetch.RetryDelay()),
	}
	if a.fetcher != nil {
		wfOpts = append(wfOpts, grading.WithFetcher(a.fetcher))
	}
	a.Workflow = grading.New(a.Store, a.Holder, wfOpts...)

	a.Admin = admin.New(a.Store, a.Holder, admin.WithBus(a.Bus), admin.WithLogger(a.Logger))
	return a, nil
}

// newLogger opens <logs>/<holder>.log, falling back to stderr warnings when
// the shared logs directory is unusable.
func newLogger(cfg *config.Config, layout datadir.Layout, holder string) *logging.Logger {
	if !cfg.Logging.Enabled {
		return logging.NopLogger()
	}
	if err := datadir.EnsureDir(layout.LogsDir); err == nil {
		if logger, err := logging.NewLogger(layout.LogsDir, holder, cfg.Logging.Level, logging.RotationConfig{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
		}); err == nil {
			return logger
		}
	}
	return logging.NewWriterLogger(os.Stderr, logging.LevelWarn)
}

// Roster loads the configured roster snapshot once.
func (a *App) Roster() (*roster.Roster, error) {
	a.rosterOnce.Do(func() {
		a.roster, a.rosterErr = roster.Load(a.Config.RosterPath())
	})
	return a.roster, a.rosterErr
}

// Fetcher returns the configured submission client, or nil.
func (a *App) Fetcher() grading.Fetcher {
	return a.fetcher
}

// Watcher builds a watcher with the configured cadence.
func (a *App) Watcher() *watcher.Watcher {
	opts := []watcher.Option{watcher.WithLogger(a.Logger), watcher.WithBus(a.Bus)}
	if a.Config.Watch.UseFsnotify {
		opts = append(opts, watcher.WithNotify())
	}
	return watcher.New(a.Config.Watch.Interval(), opts...)
}

// Close writes the metrics textfile when configured and closes the logger.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		var errs []error
		if path := a.Config.Metrics.Textfile; path != "" {
			if werr := a.Metrics.WriteTextfile(path); werr != nil {
				errs = append(errs, fmt.Errorf("write metrics: %w", werr))
			}
		}
		a.Bus.Clear()
		errs = append(errs, a.Logger.Close())
		err = errors.Join(errs...)
	})
	return err
}

// CurrentUser returns the operating system username.
func CurrentUser() (string, error) {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username, nil
	}
	for _, env := range []string{"USER", "LOGNAME", "USERNAME"} {
		if name := os.Getenv(env); name != "" {
			return name, nil
		}
	}
	return "", errors.NewValidationError("cannot determine the current user; set locks.holder").WithField("locks.holder")
}
