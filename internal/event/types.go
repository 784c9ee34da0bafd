package event

import "time"

// Event is the interface that all events implement.
type Event interface {
	// EventType returns "category.action", e.g. "lock.acquired".
	EventType() string
	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeLockAcquired   = "lock.acquired"
	TypeLockReleased   = "lock.released"
	TypeLockContended  = "lock.contended"
	TypeLockRemoved    = "lock.removed"
	TypeFetchRetry     = "fetch.retry"
	TypeFetchCompleted = "fetch.completed"
	TypeLocksChanged   = "locks.changed"
)

type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{eventType: eventType, timestamp: time.Now()}
}

// LockTarget names what a lock event is about. Lab is empty for e-mail locks.
type LockTarget struct {
	Kind    string
	Lab     string
	Student string
	Holder  string
}

// -----------------------------------------------------------------------------
// Lock Events
// -----------------------------------------------------------------------------

// LockAcquiredEvent is emitted after a lock artifact was created.
type LockAcquiredEvent struct {
	baseEvent
	LockTarget
	Nonce string
}

// NewLockAcquiredEvent creates a LockAcquiredEvent.
func NewLockAcquiredEvent(target LockTarget, nonce string) LockAcquiredEvent {
	return LockAcquiredEvent{
		baseEvent:  newBaseEvent(TypeLockAcquired),
		LockTarget: target,
		Nonce:      nonce,
	}
}

// LockReleasedEvent is emitted when the workflow releases a lock it held.
// Err is set when the release failed.
type LockReleasedEvent struct {
	baseEvent
	LockTarget
	Held time.Duration
	Err  error
}

// NewLockReleasedEvent creates a LockReleasedEvent.
func NewLockReleasedEvent(target LockTarget, held time.Duration, err error) LockReleasedEvent {
	return LockReleasedEvent{
		baseEvent:  newBaseEvent(TypeLockReleased),
		LockTarget: target,
		Held:       held,
		Err:        err,
	}
}

// LockContendedEvent is emitted when a lock could not be taken because
// someone else holds it.
type LockContendedEvent struct {
	baseEvent
	LockTarget
	HeldBy string
}

// NewLockContendedEvent creates a LockContendedEvent.
func NewLockContendedEvent(target LockTarget, heldBy string) LockContendedEvent {
	return LockContendedEvent{
		baseEvent:  newBaseEvent(TypeLockContended),
		LockTarget: target,
		HeldBy:     heldBy,
	}
}

// LockRemovedEvent is emitted when an administrator force-removes a lock.
type LockRemovedEvent struct {
	baseEvent
	LockTarget
	RemovedBy string
	Err       error
}

// NewLockRemovedEvent creates a LockRemovedEvent.
func NewLockRemovedEvent(target LockTarget, removedBy string, err error) LockRemovedEvent {
	return LockRemovedEvent{
		baseEvent:  newBaseEvent(TypeLockRemoved),
		LockTarget: target,
		RemovedBy:  removedBy,
		Err:        err,
	}
}

// -----------------------------------------------------------------------------
// Fetch Events
// -----------------------------------------------------------------------------

// FetchRetryEvent is emitted before a transient fetch failure is retried.
type FetchRetryEvent struct {
	baseEvent
	Lab     string
	Student string
	Attempt int // the attempt that failed, starting at 1
	Detail  string
}

// NewFetchRetryEvent creates a FetchRetryEvent.
func NewFetchRetryEvent(lab, student string, attempt int, detail string) FetchRetryEvent {
	return FetchRetryEvent{
		baseEvent: newBaseEvent(TypeFetchRetry),
		Lab:       lab,
		Student:   student,
		Attempt:   attempt,
		Detail:    detail,
	}
}

// FetchCompletedEvent is emitted once a fetch reached a terminal outcome.
type FetchCompletedEvent struct {
	baseEvent
	Lab      string
	Student  string
	Status   string
	Attempts int
	Files    int
	Err      error
}

// NewFetchCompletedEvent creates a FetchCompletedEvent.
func NewFetchCompletedEvent(lab, student, status string, attempts, files int, err error) FetchCompletedEvent {
	return FetchCompletedEvent{
		baseEvent: newBaseEvent(TypeFetchCompleted),
		Lab:       lab,
		Student:   student,
		Status:    status,
		Attempts:  attempts,
		Files:     files,
		Err:       err,
	}
}

// -----------------------------------------------------------------------------
// Watcher Events
// -----------------------------------------------------------------------------

// LocksChangedEvent is emitted when the watcher sees the locks directory
// change.
type LocksChangedEvent struct {
	baseEvent
	Dir string
}

// NewLocksChangedEvent creates a LocksChangedEvent.
func NewLocksChangedEvent(dir string) LocksChangedEvent {
	return LocksChangedEvent{
		baseEvent: newBaseEvent(TypeLocksChanged),
		Dir:       dir,
	}
}
