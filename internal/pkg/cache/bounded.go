package cache

import (
	"sync"
	"time"
)

// entry is owned by exactly one Bounded instance and never handed out.
type entry[V any] struct {
	value        V
	cachedAt     time.Time
	lastAccessed time.Time
	accessCount  uint64
	// touched is a logical clock bumped on every set/get. It breaks ties
	// between entries whose lastAccessed timestamps are equal.
	touched uint64
}

// Bounded is a fixed-capacity in-memory cache with TTL expiry and
// approximate LRU eviction.
//
// Semantics:
//   - maxEntries <= 0 means "unbounded" (no eviction)
//   - ttl <= 0 means entries never expire
//   - an entry is expired once now - cachedAt > ttl
//
// All methods are safe for concurrent use. Bounded never returns errors.
type Bounded[K comparable, V any] struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	items      map[K]*entry[V]
	tick       uint64
	now        func() time.Time

	sweepEvery time.Duration
	stop       chan struct{}
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

// Option configures a Bounded cache.
type Option func(*options)

type options struct {
	now        func() time.Time
	sweepEvery time.Duration
}

// WithClock replaces time.Now. Tests use it to step time deterministically.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithSweepInterval starts a background goroutine that removes expired
// entries every d. d <= 0 disables the sweeper (lazy expiry still applies).
func WithSweepInterval(d time.Duration) Option {
	return func(o *options) {
		o.sweepEvery = d
	}
}

// New constructs a cache holding at most maxEntries entries for at most ttl.
// Call Close to stop the sweeper when WithSweepInterval is used.
func New[K comparable, V any](maxEntries int, ttl time.Duration, opts ...Option) *Bounded[K, V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Bounded[K, V]{
		maxEntries: maxEntries,
		ttl:        ttl,
		items:      make(map[K]*entry[V]),
		now:        o.now,
		sweepEvery: o.sweepEvery,
		stop:       make(chan struct{}),
	}

	if c.sweepEvery > 0 {
		c.wg.Add(1)
		go c.sweepLoop()
	}
	return c
}

// Get returns the cached value for key. Expired entries are removed and
// reported as absent.
func (c *Bounded[K, V]) Get(key K) (V, bool) {
	var zero V
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return zero, false
	}
	if c.expired(e, now) {
		delete(c.items, key)
		return zero, false
	}

	c.tick++
	e.lastAccessed = now
	e.accessCount++
	e.touched = c.tick
	return e.value, true
}

// Set stores value under key. When the cache is full and key is new, the
// least recently accessed entry is evicted first.
func (c *Bounded[K, V]) Set(key K, value V) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.tick++
	if e, ok := c.items[key]; ok {
		e.value = value
		e.cachedAt = now
		e.lastAccessed = now
		e.touched = c.tick
		return
	}

	if c.maxEntries > 0 && len(c.items) >= c.maxEntries {
		c.evictLocked()
	}

	c.items[key] = &entry[V]{
		value:        value,
		cachedAt:     now,
		lastAccessed: now,
		touched:      c.tick,
	}
}

// Delete removes key if present.
func (c *Bounded[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Clear drops every entry.
func (c *Bounded[K, V]) Clear() {
	c.mu.Lock()
	c.items = make(map[K]*entry[V])
	c.mu.Unlock()
}

// Len returns the number of resident entries, including expired entries
// that have not been swept yet.
func (c *Bounded[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Sweep removes all expired entries and returns how many were dropped.
func (c *Bounded[K, V]) Sweep() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.items {
		if c.expired(e, now) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Close stops the background sweeper. Safe to call multiple times; the
// cache stays usable afterwards with lazy expiry only.
func (c *Bounded[K, V]) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
	})
	c.wg.Wait()
}

func (c *Bounded[K, V]) expired(e *entry[V], now time.Time) bool {
	return c.ttl > 0 && now.Sub(e.cachedAt) > c.ttl
}

// evictLocked drops the entry with the oldest lastAccessed. O(n), which is
// fine for the small fixed capacities this cache is built for.
func (c *Bounded[K, V]) evictLocked() {
	var (
		victim K
		oldest *entry[V]
	)
	for key, e := range c.items {
		if oldest == nil || olderThan(e, oldest) {
			victim = key
			oldest = e
		}
	}
	if oldest != nil {
		delete(c.items, victim)
	}
}

func olderThan[V any](a, b *entry[V]) bool {
	if a.lastAccessed.Equal(b.lastAccessed) {
		return a.touched < b.touched
	}
	return a.lastAccessed.Before(b.lastAccessed)
}
