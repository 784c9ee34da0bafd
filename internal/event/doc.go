// Package event provides the in-process pub-sub bus that decouples the lock
// workflow from its observers.
//
// The grading workflow publishes what happens to locks and fetches; the
// metrics collector counts it and the lock browser reacts to it, and neither
// is known to the publisher.
//
// # Event Types
//
//   - [LockAcquiredEvent] ("lock.acquired")
//   - [LockReleasedEvent] ("lock.released")
//   - [LockContendedEvent] ("lock.contended")
//   - [LockRemovedEvent] ("lock.removed"), forced removal by an administrator
//   - [FetchRetryEvent] ("fetch.retry")
//   - [FetchCompletedEvent] ("fetch.completed")
//   - [LocksChangedEvent] ("locks.changed"), the watcher saw the directory change
//
// # Usage
//
//	bus := event.NewBus(logger)
//	bus.Subscribe(event.TypeLockContended, func(e event.Event) {
//	    c := e.(event.LockContendedEvent)
//	    fmt.Printf("%s is grading %s\n", c.HeldBy, c.Student)
//	})
//
// # Thread Safety
//
// [Bus] is safe for concurrent use. Handlers run synchronously on the
// publishing goroutine; a panicking handler is recovered and logged.
package event
