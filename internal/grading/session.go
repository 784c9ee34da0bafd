package grading

import (
	"context"
	"sync"
	"time"

	"github.com/tagrade/tagrade/internal/errors"
	"github.com/tagrade/tagrade/internal/lock"
)

type heldLock struct {
	handle *lock.Handle
	since  time.Time
}

// Session holds several independent grading locks, for pair-programmed
// labs where every partner's slot must be taken before grading starts.
// Each lock has its own release path.
type Session struct {
	w      *Workflow
	mu     sync.Mutex
	held   []heldLock
	closed bool
}

// NewSession starts an empty session.
func (w *Workflow) NewSession() *Session {
	return &Session{w: w}
}

// Add takes the grading lock for one more student. When the slot is taken
// the Outcome names the holder and the session is unchanged.
func (s *Session) Add(ctx context.Context, student, lab string) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Outcome{}, errors.NewValidationError("session is closed")
	}

	h, out, err := s.w.acquire(ctx, lock.KindGrading, student, lab)
	if err != nil || h == nil {
		return out, err
	}
	s.held = append(s.held, heldLock{handle: h, since: time.Now()})
	return out, nil
}

// Held describes the locks the session currently holds.
func (s *Session) Held() []lock.Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]lock.Descriptor, len(s.held))
	for i, hl := range s.held {
		out[i] = hl.handle.Descriptor()
	}
	return out
}

// Close releases every held lock. A failed release does not stop the
// others; all failures are joined. Close is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	held := s.held
	s.held = nil
	s.closed = true
	s.mu.Unlock()

	var errs []error
	for _, hl := range held {
		if err := s.w.release(hl.handle, hl.since); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Pair locks every student for lab, runs fn, then closes the session. When
// a student is locked elsewhere, the locks already taken are released and
// fn does not run.
func (w *Workflow) Pair(ctx context.Context, lab string, students []string, fn func(context.Context) error) (out Outcome, err error) {
	if len(students) == 0 {
		return Outcome{}, errors.NewValidationError("at least one student is required").WithField("students")
	}

	s := w.NewSession()
	defer func() {
		relErr := s.Close()
		if r := recover(); r != nil {
			panic(r)
		}
		err = errors.Join(err, relErr)
	}()

	for _, student := range students {
		o, err := s.Add(ctx, student, lab)
		if err != nil || !o.Acquired {
			return o, err
		}
	}
	return Outcome{Acquired: true}, fn(ctx)
}
