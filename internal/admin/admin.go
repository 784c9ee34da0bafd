// Package admin holds the recovery tools for locks whose owners did not
// release them: listing with filters, forced removal, releasing everything a
// holder owns, and finding locks whose process is gone.
package admin

import (
	"fmt"

	"github.com/gobwas/glob"

	"github.com/tagrade/tagrade/internal/errors"
	"github.com/tagrade/tagrade/internal/event"
	"github.com/tagrade/tagrade/internal/lock"
	"github.com/tagrade/tagrade/internal/logging"
)

// Store is the part of *lock.Store the admin tools need.
type Store interface {
	List() ([]lock.Descriptor, error)
	Remove(d lock.Descriptor) error
	UnlockAllByHolder(holder string) (int, error)
}

// Filter selects locks. Zero fields match everything. Lab and Student are
// glob patterns ("Lab*", "4?").
type Filter struct {
	Kind    lock.Kind
	Holder  string
	Lab     string
	Student string
}

type matcher struct {
	f       Filter
	lab     glob.Glob
	student glob.Glob
}

func (f Filter) compile() (*matcher, error) {
	if f.Kind != "" && !f.Kind.Valid() {
		return nil, errors.NewValidationError("unknown lock kind").WithField("kind").WithValue(string(f.Kind))
	}
	m := &matcher{f: f}
	var err error
	if f.Lab != "" {
		if m.lab, err = glob.Compile(f.Lab); err != nil {
			return nil, errors.NewValidationError(fmt.Sprintf("bad lab pattern: %v", err)).WithField("lab").WithValue(f.Lab)
		}
	}
	if f.Student != "" {
		if m.student, err = glob.Compile(f.Student); err != nil {
			return nil, errors.NewValidationError(fmt.Sprintf("bad student pattern: %v", err)).WithField("student").WithValue(f.Student)
		}
	}
	return m, nil
}

func (m *matcher) match(d lock.Descriptor) bool {
	if m.f.Kind != "" && d.Kind != m.f.Kind {
		return false
	}
	if m.f.Holder != "" && d.Holder != m.f.Holder {
		return false
	}
	if m.lab != nil && !m.lab.Match(d.Lab) {
		return false
	}
	if m.student != nil && !m.student.Match(d.Student) {
		return false
	}
	return true
}

// Result is the outcome of removing one lock.
type Result struct {
	Lock lock.Descriptor
	Err  error
}

// Report collects the results of a bulk removal.
type Report struct {
	Results []Result
	Removed int
}

// Err joins every failed removal.
func (r Report) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Lock, res.Err))
		}
	}
	return errors.Join(errs...)
}

// Stale is a lock whose owning process is verifiably gone.
type Stale struct {
	Lock lock.Descriptor
	Err  *errors.StaleArtifactError
}

// Admin runs recovery operations on behalf of an operator.
type Admin struct {
	store    Store
	operator string
	bus      *event.Bus
	logger   *logging.Logger
	liveness func(lock.Descriptor) error
}

// Option configures an Admin.
type Option func(*Admin)

// WithBus publishes a lock.removed event for every removal attempt.
func WithBus(bus *event.Bus) Option {
	return func(a *Admin) {
		a.bus = bus
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(a *Admin) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithLivenessCheck replaces the liveness check used by FindStale.
func WithLivenessCheck(check func(lock.Descriptor) error) Option {
	return func(a *Admin) {
		a.liveness = check
	}
}

// New creates an Admin acting as operator.
func New(store Store, operator string, opts ...Option) *Admin {
	a := &Admin{
		store:    store,
		operator: operator,
		logger:   logging.NopLogger(),
		liveness: lock.Descriptor.CheckLiveness,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("removed_by", operator)
	return a
}

// List returns the locks matching f, oldest first.
func (a *Admin) List(f Filter) ([]lock.Descriptor, error) {
	m, err := f.compile()
	if err != nil {
		return nil, err
	}
	all, err := a.store.List()
	if err != nil {
		return nil, err
	}

	var out []lock.Descriptor
	for _, d := range all {
		if m.match(d) {
			out = append(out, d)
		}
	}
	return out, nil
}

// Remove force-removes every given lock, whoever holds it, and keeps going
// past failures.
func (a *Admin) Remove(locks []lock.Descriptor) Report {
	var report Report
	for _, d := range locks {
		err := a.store.Remove(d)
		a.bus.Publish(event.NewLockRemovedEvent(
			event.LockTarget{Kind: string(d.Kind), Lab: d.Lab, Student: d.Student, Holder: d.Holder},
			a.operator, err,
		))
		if err != nil {
			a.logger.Warn("failed to remove lock", "slot", d.Slot, "error", err)
		} else {
			report.Removed++
			a.logger.Info("removed lock",
				logging.KeyHolder, d.Holder,
				logging.KeyLab, d.Lab,
				logging.KeyStudent, d.Student,
			)
		}
		report.Results = append(report.Results, Result{Lock: d, Err: err})
	}
	return report
}

// RemoveMatching removes every lock matching f.
func (a *Admin) RemoveMatching(f Filter) (Report, error) {
	locks, err := a.List(f)
	if err != nil {
		return Report{}, err
	}
	return a.Remove(locks), nil
}

// ReleaseHolder removes every lock recorded for holder. This is the
// recovery entry point run when a grading process is interrupted.
func (a *Admin) ReleaseHolder(holder string) (int, error) {
	if holder == "" {
		return 0, errors.NewValidationError("holder is required").WithField("holder")
	}
	n, err := a.store.UnlockAllByHolder(holder)
	a.logger.Info("released locks for holder",
		logging.KeyHolder, holder,
		"count", n,
	)
	return n, err
}

// FindStale returns the locks matching f whose process is verifiably gone.
// Locks created on other hosts are never reported.
func (a *Admin) FindStale(f Filter) ([]Stale, error) {
	locks, err := a.List(f)
	if err != nil {
		return nil, err
	}

	var out []Stale
	for _, d := range locks {
		var stale *errors.StaleArtifactError
		if errors.As(a.liveness(d), &stale) {
			out = append(out, Stale{Lock: d, Err: stale})
		}
	}
	return out, nil
}

// RemoveStale removes every stale lock matching f.
func (a *Admin) RemoveStale(f Filter) (Report, error) {
	stale, err := a.FindStale(f)
	if err != nil {
		return Report{}, err
	}
	locks := make([]lock.Descriptor, len(stale))
	for i, s := range stale {
		locks[i] = s.Lock
	}
	return a.Remove(locks), nil
}
