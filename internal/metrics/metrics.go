// Package metrics counts lock and fetch activity from the event bus and
// exports it in the Prometheus text format.
//
// A grading session is a short-lived CLI process, so there is no scrape
// endpoint: the counters are written once on exit to the file named by
// metrics.textfile, for node_exporter's textfile collector.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tagrade/tagrade/internal/event"
)

// Collector holds tagrade's counters in its own registry.
type Collector struct {
	registry *prometheus.Registry

	LocksAcquired  *prometheus.CounterVec
	LocksContended *prometheus.CounterVec
	LocksReleased  *prometheus.CounterVec
	LocksRemoved   *prometheus.CounterVec
	LockHeld       *prometheus.HistogramVec
	FetchRetries   *prometheus.CounterVec
	FetchCompleted *prometheus.CounterVec

	subscriptions []string
}

// New creates a Collector with every metric registered.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		LocksAcquired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tagrade_locks_acquired_total",
				Help: "Lock artifacts created by this process",
			},
			[]string{"kind"},
		),
		LocksContended: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tagrade_locks_contended_total",
				Help: "Lock attempts refused because another grader held the slot",
			},
			[]string{"kind"},
		),
		LocksReleased: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tagrade_locks_released_total",
				Help: "Lock releases by outcome",
			},
			[]string{"kind", "result"},
		),
		LocksRemoved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tagrade_locks_removed_total",
				Help: "Locks force-removed by an administrator",
			},
			[]string{"kind", "result"},
		),
		LockHeld: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tagrade_lock_held_seconds",
				Help:    "How long locks were held before release",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
			[]string{"kind"},
		),
		FetchRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tagrade_fetch_retries_total",
				Help: "Transient fetch failures that were retried",
			},
			[]string{"lab"},
		),
		FetchCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tagrade_fetch_completed_total",
				Help: "Fetches by terminal status",
			},
			[]string{"status"},
		),
	}

	c.registry.MustRegister(
		c.LocksAcquired,
		c.LocksContended,
		c.LocksReleased,
		c.LocksRemoved,
		c.LockHeld,
		c.FetchRetries,
		c.FetchCompleted,
	)
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Attach subscribes the collector to bus.
func (c *Collector) Attach(bus *event.Bus) {
	c.subscriptions = append(c.subscriptions,
		bus.Subscribe(event.TypeLockAcquired, c.onLockAcquired),
		bus.Subscribe(event.TypeLockContended, c.onLockContended),
		bus.Subscribe(event.TypeLockReleased, c.onLockReleased),
		bus.Subscribe(event.TypeLockRemoved, c.onLockRemoved),
		bus.Subscribe(event.TypeFetchRetry, c.onFetchRetry),
		bus.Subscribe(event.TypeFetchCompleted, c.onFetchCompleted),
	)
}

// Detach removes the collector's subscriptions from bus.
func (c *Collector) Detach(bus *event.Bus) {
	for _, id := range c.subscriptions {
		bus.Unsubscribe(id)
	}
	c.subscriptions = nil
}

// WriteTextfile atomically writes every metric to path.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}

func (c *Collector) onLockAcquired(e event.Event) {
	if ev, ok := e.(event.LockAcquiredEvent); ok {
		c.LocksAcquired.WithLabelValues(ev.Kind).Inc()
	}
}

func (c *Collector) onLockContended(e event.Event) {
	if ev, ok := e.(event.LockContendedEvent); ok {
		c.LocksContended.WithLabelValues(ev.Kind).Inc()
	}
}

func (c *Collector) onLockReleased(e event.Event) {
	ev, ok := e.(event.LockReleasedEvent)
	if !ok {
		return
	}
	c.LocksReleased.WithLabelValues(ev.Kind, result(ev.Err)).Inc()
	if ev.Err == nil {
		c.LockHeld.WithLabelValues(ev.Kind).Observe(ev.Held.Seconds())
	}
}

func (c *Collector) onLockRemoved(e event.Event) {
	if ev, ok := e.(event.LockRemovedEvent); ok {
		c.LocksRemoved.WithLabelValues(ev.Kind, result(ev.Err)).Inc()
	}
}

func (c *Collector) onFetchRetry(e event.Event) {
	if ev, ok := e.(event.FetchRetryEvent); ok {
		c.FetchRetries.WithLabelValues(ev.Lab).Inc()
	}
}

func (c *Collector) onFetchCompleted(e event.Event) {
	if ev, ok := e.(event.FetchCompletedEvent); ok {
		c.FetchCompleted.WithLabelValues(ev.Status).Inc()
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
