package poll

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Cache holds the last known value of a polled remote resource and keeps it
// fresh only while consumers are active. The remote state can change from
// outside the process, so a one-shot cache is wrong; constant polling is
// rate-limit-risky. The cache polls at `period` while someone has called Get
// within `idleAfter`, then goes idle and serves the stale value until the
// next Get.
type Cache[T any] struct {
	name      string
	fetch     func(context.Context) (T, error)
	period    time.Duration
	idleAfter time.Duration
	clock     Clock

	mu         sync.Mutex
	value      T
	hasValue   bool
	fetchedAt  time.Time
	lastActive time.Time
	polling    bool
	// generation increments on every Store so a fetch that started before a
	// local write cannot clobber it when it resolves later.
	generation uint64
	stop       chan struct{}

	onUpdate func(T)
}

func New[T any](name string, period, idleAfter time.Duration, fetch func(context.Context) (T, error)) *Cache[T] {
	return NewWithClock(name, period, idleAfter, fetch, realClock{})
}

func NewWithClock[T any](name string, period, idleAfter time.Duration, fetch func(context.Context) (T, error), clock Clock) *Cache[T] {
	if period <= 0 || idleAfter <= period {
		panic(fmt.Sprintf("poll cache %s: need 0 < period < idleAfter", name))
	}
	return &Cache[T]{
		name:      name,
		fetch:     fetch,
		period:    period,
		idleAfter: idleAfter,
		clock:     clock,
	}
}

// Get marks the resource active, ensures the refresh loop is running, and
// returns the held value. When nothing is held yet the fetch happens
// synchronously so the first caller gets real data.
func (c *Cache[T]) Get(ctx context.Context) (T, error) {
	c.mu.Lock()
	c.lastActive = c.clock.Now()

	needSync := !c.hasValue
	if !c.polling {
		c.startPollingLocked(!needSync)
	}

	if !needSync {
		value := c.value
		c.mu.Unlock()
		return value, nil
	}

	gen := c.generation
	c.mu.Unlock()

	value, err := c.fetch(ctx)
	if err != nil {
		fetchFailure.WithLabelValues(c.name).Inc()
		var zero T
		return zero, err
	}
	fetchSuccess.WithLabelValues(c.name).Inc()
	c.storeFetched(gen, value)

	c.mu.Lock()
	value = c.value
	c.mu.Unlock()
	return value, nil
}

// Peek returns the held value without marking activity or triggering a
// fetch. Passive readers (metrics scrapes, status pages) must not keep the
// polling loop alive.
func (c *Cache[T]) Peek() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.hasValue
}

// Store replaces the held value with server-acknowledged state from a local
// write, keeping read-after-write consistent without another round trip.
func (c *Cache[T]) Store(value T) {
	c.mu.Lock()
	c.generation++
	c.value = value
	c.hasValue = true
	c.fetchedAt = c.clock.Now()
	lastFetch.WithLabelValues(c.name).Set(float64(c.fetchedAt.Unix()))
	notify := c.onUpdate
	c.mu.Unlock()

	if notify != nil {
		notify(value)
	}
}

// SetOnUpdate registers a callback invoked with every accepted value, both
// local writes and poll refreshes. Must be set before the cache is used;
// the callback runs outside the cache lock and may call Peek.
func (c *Cache[T]) SetOnUpdate(fn func(T)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUpdate = fn
}

// Polling reports whether the background refresh loop is running.
func (c *Cache[T]) Polling() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.polling
}

// Close stops any running refresh loop.
func (c *Cache[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopPollingLocked()
}

func (c *Cache[T]) startPollingLocked(immediate bool) {
	c.polling = true
	c.stop = make(chan struct{})
	pollingActive.WithLabelValues(c.name).Set(1)
	go c.loop(c.stop, immediate)
}

func (c *Cache[T]) stopPollingLocked() {
	if !c.polling {
		return
	}
	c.polling = false
	close(c.stop)
	c.stop = nil
	pollingActive.WithLabelValues(c.name).Set(0)
}

func (c *Cache[T]) loop(stop chan struct{}, immediate bool) {
	if immediate {
		c.refresh()
	}

	ticker := c.clock.NewTicker(c.period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			c.mu.Lock()
			if c.clock.Now().Sub(c.lastActive) > c.idleAfter {
				c.stopPollingLocked()
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()
			c.refresh()
		}
	}
}

// refresh runs one fetch. Failures keep the previous value in place; an
// error here must never kill the loop.
func (c *Cache[T]) refresh() {
	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()

	value, err := c.fetch(context.Background())
	if err != nil {
		fetchFailure.WithLabelValues(c.name).Inc()
		slog.Warn("poll refresh failed, keeping last value", "cache", c.name, "error", err)
		return
	}
	fetchSuccess.WithLabelValues(c.name).Inc()
	c.storeFetched(gen, value)
}

func (c *Cache[T]) storeFetched(gen uint64, value T) {
	c.mu.Lock()
	if c.generation != gen {
		// A local write landed while this fetch was in flight; the write is
		// fresher.
		c.mu.Unlock()
		return
	}
	c.value = value
	c.hasValue = true
	c.fetchedAt = c.clock.Now()
	lastFetch.WithLabelValues(c.name).Set(float64(c.fetchedAt.Unix()))
	notify := c.onUpdate
	c.mu.Unlock()

	if notify != nil {
		notify(value)
	}
}
