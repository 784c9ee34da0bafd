// Package grading sequences lock acquisition, submission fetch and lock
// release.
//
// Every entry point follows the same shape: look the slot up, take the lock
// or report who has it, run the caller's work, and release in a deferred
// block that also runs when the work returns an error, the context is
// cancelled or the work panics. Only the fetch step is retried; the lock is
// held across retries so other graders keep seeing the pair as in progress.
package grading

import (
	"context"
	"fmt"
	"time"

	"github.com/tagrade/tagrade/internal/errors"
	"github.com/tagrade/tagrade/internal/event"
	"github.com/tagrade/tagrade/internal/lock"
	"github.com/tagrade/tagrade/internal/logging"
	"github.com/tagrade/tagrade/internal/roster"
)

// Defaults used when no option overrides them.
const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 2 * time.Second
)

// LockStore is the part of *lock.Store the workflow needs.
type LockStore interface {
	Holder(student, lab string) (string, bool, error)
	Lock(student, lab, holder string) (*lock.Handle, error)
	EmailHolder(student string) (string, bool, error)
	LockEmail(student, holder string) (*lock.Handle, error)
	Unlock(h *lock.Handle) error
}

// Outcome reports what happened to the lock around a piece of work.
type Outcome struct {
	// Acquired is true when the work ran under a lock this process took.
	Acquired bool
	// Locked is true when the slot was taken and the work did not run.
	Locked bool
	// LockedBy names the holder of a taken slot. It can be empty when the
	// holder could not be read, for example because the winner released
	// between our failed create and the lookup.
	LockedBy string
	// Student is the student whose slot was taken. Set with LockedBy.
	Student string
	// Result is filled in by Fetch.
	Result Result
}

// LockedElsewhere reports whether the work was skipped because someone
// already held the lock.
func (o Outcome) LockedElsewhere() bool {
	return o.Locked
}

// Workflow runs grading work under locks held by one holder.
type Workflow struct {
	store       LockStore
	fetcher     Fetcher
	holder      string
	bus         *event.Bus
	logger      *logging.Logger
	retries     *RetryTracker
	maxAttempts int
	retryDelay  time.Duration
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithBus publishes lock and fetch events on bus.
func WithBus(bus *event.Bus) Option {
	return func(w *Workflow) {
		w.bus = bus
	}
}

// WithLogger sets the workflow logger.
func WithLogger(logger *logging.Logger) Option {
	return func(w *Workflow) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithRetry bounds the fetch retry loop. Values below one attempt are
// raised to one; a negative delay is treated as zero.
func WithRetry(maxAttempts int, delay time.Duration) Option {
	return func(w *Workflow) {
		w.maxAttempts = max(maxAttempts, 1)
		w.retryDelay = max(delay, 0)
	}
}

// WithFetcher sets the submission fetch collaborator used by Fetch and
// Grade.
func WithFetcher(f Fetcher) Option {
	return func(w *Workflow) {
		w.fetcher = f
	}
}

// New creates a Workflow whose locks are recorded under holder.
func New(store LockStore, holder string, opts ...Option) *Workflow {
	w := &Workflow{
		store:       store,
		holder:      holder,
		logger:      logging.NopLogger(),
		retries:     NewRetryTracker(),
		maxAttempts: DefaultMaxAttempts,
		retryDelay:  DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.WithHolder(holder)
	return w
}

// Holder returns the identity recorded in this workflow's locks.
func (w *Workflow) Holder() string {
	return w.holder
}

// Retries exposes the per-pair attempt history.
func (w *Workflow) Retries() *RetryTracker {
	return w.retries
}

// WithLock runs fn while holding the grading lock for (student, lab).
//
// When the slot is already held, by anyone including this holder from
// another terminal, fn is not called and the returned Outcome names the
// holder. The lock is released before WithLock returns or re-panics; a
// release failure is joined with fn's error.
func (w *Workflow) WithLock(ctx context.Context, student, lab string, fn func(context.Context) error) (Outcome, error) {
	return w.withLock(ctx, lock.KindGrading, student, lab, fn)
}

// WithEmailLock runs fn while holding the student's e-mail lock.
func (w *Workflow) WithEmailLock(ctx context.Context, student string, fn func(context.Context) error) (Outcome, error) {
	return w.withLock(ctx, lock.KindEmail, student, "", fn)
}

func (w *Workflow) withLock(ctx context.Context, kind lock.Kind, student, lab string, fn func(context.Context) error) (out Outcome, err error) {
	h, out, err := w.acquire(ctx, kind, student, lab)
	if err != nil || h == nil {
		return out, err
	}

	since := time.Now()
	defer func() {
		relErr := w.release(h, since)
		if r := recover(); r != nil {
			panic(r)
		}
		err = errors.Join(err, relErr)
	}()

	return out, fn(ctx)
}

// acquire takes the lock or reports who holds it. A nil handle with a nil
// error means the slot was taken, and the Outcome then has Locked set.
func (w *Workflow) acquire(ctx context.Context, kind lock.Kind, student, lab string) (*lock.Handle, Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, Outcome{}, err
	}
	target := event.LockTarget{Kind: string(kind), Lab: lab, Student: student, Holder: w.holder}

	var (
		current string
		held    bool
		err     error
	)
	if kind == lock.KindEmail {
		current, held, err = w.store.EmailHolder(student)
	} else {
		current, held, err = w.store.Holder(student, lab)
	}
	if err != nil {
		return nil, Outcome{}, err
	}
	if held {
		return nil, w.contended(target, current), nil
	}

	var h *lock.Handle
	if kind == lock.KindEmail {
		h, err = w.store.LockEmail(student, w.holder)
	} else {
		h, err = w.store.Lock(student, lab, w.holder)
	}
	if err != nil {
		var locked *errors.AlreadyLockedError
		if errors.As(err, &locked) {
			return nil, w.contended(target, locked.Holder), nil
		}
		return nil, Outcome{}, err
	}

	w.bus.Publish(event.NewLockAcquiredEvent(target, h.Descriptor().Nonce))
	return h, Outcome{Acquired: true}, nil
}

func (w *Workflow) contended(target event.LockTarget, holder string) Outcome {
	w.bus.Publish(event.NewLockContendedEvent(target, holder))
	w.logger.Info("already locked",
		logging.KeyLab, target.Lab,
		logging.KeyStudent, target.Student,
		"held_by", holder,
	)
	return Outcome{Locked: true, LockedBy: holder, Student: target.Student}
}

func (w *Workflow) release(h *lock.Handle, since time.Time) error {
	d := h.Descriptor()
	target := event.LockTarget{Kind: string(d.Kind), Lab: d.Lab, Student: d.Student, Holder: d.Holder}

	err := w.store.Unlock(h)
	w.bus.Publish(event.NewLockReleasedEvent(target, time.Since(since), err))
	if err != nil {
		w.logger.Error("failed to release lock",
			logging.KeyLab, d.Lab,
			logging.KeyStudent, d.Student,
			"error", err,
		)
	}
	return err
}

// Fetch downloads the student's submission while holding the grading lock.
// Transient results are retried up to the configured number of attempts
// with the configured delay between them.
func (w *Workflow) Fetch(ctx context.Context, student roster.Student, lab roster.Lab) (Outcome, error) {
	if w.fetcher == nil {
		return Outcome{}, errors.NewValidationError("workflow has no fetcher")
	}

	var result Result
	out, err := w.WithLock(ctx, student.Key(), lab.Name, func(ctx context.Context) error {
		var fetchErr error
		result, fetchErr = w.fetchWithRetry(ctx, student, lab)
		return fetchErr
	})
	out.Result = result
	return out, err
}

// Grade is a whole grading session: it locks every student, fetches each
// submission, then calls review with the results while the locks are still
// held so nobody else picks the students up while they are being graded.
// review may be nil. It is not called when a fetch failed. When any student
// is locked elsewhere nothing is fetched.
func (w *Workflow) Grade(ctx context.Context, lab roster.Lab, students []roster.Student, review func(context.Context, []Result) error) ([]Result, Outcome, error) {
	if w.fetcher == nil {
		return nil, Outcome{}, errors.NewValidationError("workflow has no fetcher")
	}

	keys := make([]string, len(students))
	for i, s := range students {
		keys[i] = s.Key()
	}

	results := make([]Result, 0, len(students))
	out, err := w.Pair(ctx, lab.Name, keys, func(ctx context.Context) error {
		var errs []error
		for _, s := range students {
			res, err := w.fetchWithRetry(ctx, s, lab)
			results = append(results, res)
			if err != nil {
				errs = append(errs, err)
				if ctx.Err() != nil {
					break
				}
			}
		}
		if err := errors.Join(errs...); err != nil || review == nil {
			return err
		}
		return review(ctx, results)
	})
	return results, out, err
}

func (w *Workflow) fetchWithRetry(ctx context.Context, student roster.Student, lab roster.Lab) (Result, error) {
	key := student.Key()
	log := w.logger.WithLab(lab.Name).WithStudent(key)
	w.retries.Begin(lab.Name, key, w.maxAttempts)

	for {
		res, err := w.fetcher.Fetch(ctx, student, lab)
		if err != nil && errors.IsRetryable(err) && ctx.Err() == nil {
			res, err = Result{Status: StatusTransientError, Detail: err.Error()}, nil
		}
		if err != nil {
			state := w.retries.Record(lab.Name, key, res.Status, err.Error())
			w.completed(lab.Name, key, res, state.Attempts, err)
			return res, err
		}

		state := w.retries.Record(lab.Name, key, res.Status, res.Detail)
		if res.Status.Terminal() {
			w.completed(lab.Name, key, res, state.Attempts, nil)
			return res, nil
		}

		if state.Attempts >= state.MaxAttempts {
			err := errors.NewFetchError(
				fmt.Sprintf("giving up after %d attempts", state.Attempts),
				errors.New(res.Detail),
			).WithTarget(lab.Name, key).WithTransient(true)
			w.completed(lab.Name, key, res, state.Attempts, err)
			return res, err
		}

		w.bus.Publish(event.NewFetchRetryEvent(lab.Name, key, state.Attempts, res.Detail))
		log.Warn("transient fetch failure, retrying",
			"attempt", state.Attempts,
			"max_attempts", state.MaxAttempts,
			"detail", res.Detail,
		)
		if err := sleep(ctx, w.retryDelay); err != nil {
			w.completed(lab.Name, key, res, state.Attempts, err)
			return res, err
		}
	}
}

func (w *Workflow) completed(lab, student string, res Result, attempts int, err error) {
	w.bus.Publish(event.NewFetchCompletedEvent(lab, student, res.Status.String(), attempts, len(res.Files), err))
	log := w.logger.WithLab(lab).WithStudent(student)
	if err != nil {
		log.Error("fetch failed", "status", res.Status.String(), "attempts", attempts, "error", err)
		return
	}
	log.Info("fetch completed", "status", res.Status.String(), "attempts", attempts, "files", len(res.Files))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
