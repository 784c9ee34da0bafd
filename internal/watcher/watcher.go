// Package watcher notices when another process changes a watched directory,
// so list views of the locks directory can redraw without a push channel.
//
// Each watch remembers a digest of its directory listing. Every poll
// recomputes the digests and invokes a watch's callback once when its
// digest moved, however many entries changed since the previous poll.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"

	"github.com/tagrade/tagrade/internal/errors"
	"github.com/tagrade/tagrade/internal/event"
	"github.com/tagrade/tagrade/internal/logging"
)

// DefaultInterval is the poll cadence when none is configured.
const DefaultInterval = time.Second

// debounce collects bursts of fsnotify events into one early poll.
const debounce = 50 * time.Millisecond

// Callback is invoked with the watch ID after its directory changed.
type Callback func(id string)

type watch struct {
	id     string
	dir    string
	digest uint64
	cb     Callback
}

// Watcher polls registered directories. Register and Unregister may be
// called while Run is active.
type Watcher struct {
	interval time.Duration
	notify   bool
	bus      *event.Bus
	logger   *logging.Logger

	mu      sync.Mutex
	watches map[string]*watch
	fsw     *fsnotify.Watcher
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the watcher logger.
func WithLogger(logger *logging.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithBus publishes a locks.changed event for every detected change.
func WithBus(bus *event.Bus) Option {
	return func(w *Watcher) {
		w.bus = bus
	}
}

// WithNotify lets filesystem notifications schedule an early poll of the
// affected watch. The fixed-interval poll keeps running.
func WithNotify() Option {
	return func(w *Watcher) {
		w.notify = true
	}
}

// New creates a watcher polling every interval.
func New(interval time.Duration, opts ...Option) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	w := &Watcher{
		interval: interval,
		logger:   logging.NopLogger(),
		watches:  make(map[string]*watch),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Register starts watching dir under id, replacing any watch with that id.
// The current listing is the baseline: only later changes invoke cb.
func (w *Watcher) Register(id, dir string, cb Callback) error {
	if id == "" {
		return errors.NewValidationError("watch id is required").WithField("id")
	}
	if cb == nil {
		return errors.NewValidationError("watch callback is required").WithField("callback")
	}

	digest, err := Digest(dir)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.watches[id] = &watch{id: id, dir: dir, digest: digest, cb: cb}
	if w.fsw != nil {
		w.addNotify(dir)
	}
	return nil
}

// Unregister stops the watch. It reports whether the id was registered.
func (w *Watcher) Unregister(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	wt, ok := w.watches[id]
	if !ok {
		return false
	}
	delete(w.watches, id)
	if w.fsw != nil && !w.dirWatchedLocked(wt.dir) {
		_ = w.fsw.Remove(wt.dir)
	}
	return true
}

// Len returns the number of registered watches.
func (w *Watcher) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.watches)
}

// Run polls until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	var (
		events  <-chan fsnotify.Event
		errs    <-chan error
		pending = make(map[string]bool)
		timer   = time.NewTimer(debounce)
	)
	timer.Stop()
	defer timer.Stop()

	if w.notify {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			w.logger.Warn("filesystem notifications unavailable, polling only", "error", err)
		} else {
			w.mu.Lock()
			w.fsw = fsw
			for _, wt := range w.watches {
				w.addNotify(wt.dir)
			}
			w.mu.Unlock()
			events, errs = fsw.Events, fsw.Errors

			defer func() {
				w.mu.Lock()
				w.fsw = nil
				w.mu.Unlock()
				_ = fsw.Close()
			}()
		}
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			w.poll(nil)

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			pending[filepath.Dir(ev.Name)] = true
			timer.Reset(debounce)

		case <-timer.C:
			dirs := pending
			pending = make(map[string]bool)
			w.poll(dirs)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Debug("filesystem notification error", "error", err)
		}
	}
}

// Poll checks every watch once and invokes the callbacks of those that
// changed.
func (w *Watcher) Poll() {
	w.poll(nil)
}

// poll checks the watches whose directory is in dirs, or all of them when
// dirs is nil.
func (w *Watcher) poll(dirs map[string]bool) {
	w.mu.Lock()
	snapshot := make([]*watch, 0, len(w.watches))
	for _, wt := range w.watches {
		if dirs == nil || dirs[filepath.Clean(wt.dir)] {
			snapshot = append(snapshot, wt)
		}
	}
	w.mu.Unlock()

	digests := make([]uint64, len(snapshot))
	ok := make([]bool, len(snapshot))
	for i, wt := range snapshot {
		d, err := Digest(wt.dir)
		if err != nil {
			w.logger.Warn("failed to read watched directory", "watch", wt.id, "dir", wt.dir, "error", err)
			continue
		}
		digests[i], ok[i] = d, true
	}

	var fire []*watch
	w.mu.Lock()
	for i, wt := range snapshot {
		// Skip watches unregistered or replaced during the scan.
		if !ok[i] || w.watches[wt.id] != wt || wt.digest == digests[i] {
			continue
		}
		wt.digest = digests[i]
		fire = append(fire, wt)
	}
	w.mu.Unlock()

	for _, wt := range fire {
		w.logger.Debug("watched directory changed", "watch", wt.id, "dir", wt.dir)
		w.bus.Publish(event.NewLocksChangedEvent(wt.dir))
		wt.cb(wt.id)
	}
}

// addNotify must be called with w.mu held.
func (w *Watcher) addNotify(dir string) {
	if err := w.fsw.Add(dir); err != nil {
		w.logger.Debug("not watching directory for notifications", "dir", dir, "error", err)
	}
}

func (w *Watcher) dirWatchedLocked(dir string) bool {
	for _, wt := range w.watches {
		if wt.dir == dir {
			return true
		}
	}
	return false
}

// Digest hashes the sorted entry names of dir and, for symlinks, their
// targets. A missing directory hashes like an empty one.
func Digest(dir string) (uint64, error) {
	h := xxhash.New()

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return h.Sum64(), nil
		}
		return 0, errors.NewFilesystemError("readdir", dir, err)
	}

	for _, entry := range entries {
		_, _ = h.WriteString(entry.Name())
		_, _ = h.Write([]byte{0})
		if entry.Type()&os.ModeSymlink != 0 {
			if target, err := os.Readlink(filepath.Join(dir, entry.Name())); err == nil {
				_, _ = h.WriteString(target)
			}
		}
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64(), nil
}
