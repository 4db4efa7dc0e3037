// Package cache provides a bounded key→resource cache for values that
// are expensive to create and must be disposed when they leave the cache.
//
// Creation is serialized per key: however many goroutines ask for a
// missing key at once, the factory runs once and every caller observes
// its result or its error. A failed creation leaves nothing behind.
//
// Callers receive a Handle rather than the bare value. Releasing the
// handle only marks the entry idle. Disposal happens on eviction, and an
// entry evicted while handles are outstanding is disposed when the last
// one is released, so a handle never points at a disposed value.
//
// Replacement is least-recently-used: every successful LockItem moves
// the entry to the front and capacity overflow evicts from the back.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by LockItem once Close has been called.
var ErrClosed = errors.New("cache: closed")

// Factory creates the value for a missing key.
type Factory[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Option configures a Cache.
type Option[K comparable, V any] func(*Cache[K, V])

// WithOnEvict registers the disposer. It runs exactly once per entry
// that leaves the cache, outside the cache lock.
func WithOnEvict[K comparable, V any](fn func(key K, value V)) Option[K, V] {
	return func(c *Cache[K, V]) {
		c.onEvict = fn
	}
}

// CloseOnEvict is WithOnEvict for values that are io.Closers. Close
// errors are passed to report, which may be nil.
func CloseOnEvict[K comparable, V io.Closer](report func(key K, err error)) Option[K, V] {
	return WithOnEvict(func(key K, value V) {
		if err := value.Close(); err != nil && report != nil {
			report(key, err)
		}
	})
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Entries   int   `json:"entries"`
	Capacity  int   `json:"capacity"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Creations int64 `json:"creations"`
	Failures  int64 `json:"failures"`
	Evictions int64 `json:"evictions"`
}

// entry is a cached value on the LRU list.
type entry[K comparable, V any] struct {
	key      K
	value    V
	refs     int
	detached bool
	disposed bool
	prev     *entry[K, V]
	next     *entry[K, V]
}

// call is an in-flight creation that late arrivals wait on.
type call[K comparable, V any] struct {
	done    chan struct{}
	entry   *entry[K, V]
	err     error
	waiters int
}

// Cache is a bounded LRU cache with per-key serialized creation.
type Cache[K comparable, V any] struct {
	mutex    sync.Mutex
	entries  map[K]*entry[K, V]
	pending  map[K]*call[K, V]
	capacity int
	closed   bool
	onEvict  func(K, V)

	// LRU doubly-linked list with sentinel head and tail
	head *entry[K, V]
	tail *entry[K, V]

	hits      atomic.Int64
	misses    atomic.Int64
	creations atomic.Int64
	failures  atomic.Int64
	evictions atomic.Int64
}

// New creates a cache holding at most capacity entries. A capacity
// below one is treated as one.
func New[K comparable, V any](capacity int, opts ...Option[K, V]) *Cache[K, V] {
	if capacity < 1 {
		capacity = 1
	}

	c := &Cache[K, V]{
		entries:  make(map[K]*entry[K, V]),
		pending:  make(map[K]*call[K, V]),
		capacity: capacity,
		head:     &entry[K, V]{},
		tail:     &entry[K, V]{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// LockItem returns a handle to the value for key, creating it with
// factory when absent. Concurrent callers for a missing key share one
// factory call. A caller whose ctx ends while waiting gets ctx.Err();
// the creation itself carries on for the others.
func (c *Cache[K, V]) LockItem(ctx context.Context, key K, factory Factory[K, V]) (*Handle[K, V], error) {
	c.mutex.Lock()

	if c.closed {
		c.mutex.Unlock()
		return nil, ErrClosed
	}

	if e, exists := c.entries[key]; exists {
		e.refs++
		c.moveToFront(e)
		c.mutex.Unlock()
		c.hits.Add(1)
		return c.newHandle(e), nil
	}

	c.misses.Add(1)

	if inflight, exists := c.pending[key]; exists {
		inflight.waiters++
		c.mutex.Unlock()
		return c.wait(ctx, inflight)
	}

	inflight := &call[K, V]{done: make(chan struct{})}
	c.pending[key] = inflight
	c.mutex.Unlock()

	value, err := c.create(ctx, key, factory)

	return c.complete(key, inflight, value, err)
}

// create runs the factory, converting a panic into an error so the
// waiters are always released.
func (c *Cache[K, V]) create(ctx context.Context, key K, factory Factory[K, V]) (value V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cache: factory panicked: %v", r)
		}
	}()
	return factory(ctx, key)
}

// complete publishes the creation result and hands the creator its handle.
func (c *Cache[K, V]) complete(key K, inflight *call[K, V], value V, err error) (*Handle[K, V], error) {
	c.mutex.Lock()
	delete(c.pending, key)

	if err != nil {
		c.failures.Add(1)
		inflight.err = err
		close(inflight.done)
		c.mutex.Unlock()
		return nil, err
	}

	if c.closed {
		inflight.err = ErrClosed
		close(inflight.done)
		c.mutex.Unlock()
		c.dispose(key, value)
		return nil, ErrClosed
	}

	e := &entry[K, V]{
		key:   key,
		value: value,
		refs:  1 + inflight.waiters,
	}
	c.entries[key] = e
	c.addToFront(e)
	c.creations.Add(1)

	victims := c.evictIfNeeded()

	inflight.entry = e
	close(inflight.done)
	c.mutex.Unlock()

	c.disposeAll(victims)

	return c.newHandle(e), nil
}

// wait blocks until inflight completes or ctx ends. The creator has
// already counted this caller's reference when it succeeds.
func (c *Cache[K, V]) wait(ctx context.Context, inflight *call[K, V]) (*Handle[K, V], error) {
	select {
	case <-inflight.done:
		if inflight.err != nil {
			return nil, inflight.err
		}
		return c.newHandle(inflight.entry), nil

	case <-ctx.Done():
		c.mutex.Lock()
		select {
		case <-inflight.done:
			// Completed while we were giving up: drop the reference
			// the creator reserved for us.
			c.mutex.Unlock()
			if inflight.err == nil {
				c.newHandle(inflight.entry).Release()
			}
		default:
			inflight.waiters--
			c.mutex.Unlock()
		}
		return nil, ctx.Err()
	}
}

// evictIfNeeded detaches least-recently-used entries until the cache is
// within capacity. Idle victims are returned for disposal; busy ones are
// disposed by their last Release. Caller holds the mutex.
func (c *Cache[K, V]) evictIfNeeded() []*entry[K, V] {
	var victims []*entry[K, V]
	for len(c.entries) > c.capacity && c.tail.prev != c.head {
		lru := c.tail.prev
		c.detach(lru)
		c.evictions.Add(1)
		if lru.refs == 0 {
			victims = append(victims, lru)
		}
	}
	return victims
}

// detach removes e from the map and list. Caller holds the mutex.
func (c *Cache[K, V]) detach(e *entry[K, V]) {
	c.removeFromList(e)
	delete(c.entries, e.key)
	e.detached = true
}

// release drops one reference to e, disposing it when it was detached
// and this was the last reference.
func (c *Cache[K, V]) release(e *entry[K, V]) {
	c.mutex.Lock()
	e.refs--
	dispose := e.detached && e.refs == 0 && !e.disposed
	if dispose {
		e.disposed = true
	}
	c.mutex.Unlock()

	if dispose {
		c.dispose(e.key, e.value)
	}
}

// disposeAll disposes idle detached entries that nobody else claimed.
func (c *Cache[K, V]) disposeAll(victims []*entry[K, V]) {
	for _, e := range victims {
		c.mutex.Lock()
		claim := !e.disposed && e.refs == 0
		if claim {
			e.disposed = true
		}
		c.mutex.Unlock()

		if claim {
			c.dispose(e.key, e.value)
		}
	}
}

func (c *Cache[K, V]) dispose(key K, value V) {
	if c.onEvict != nil {
		c.onEvict(key, value)
	}
}

// Remove evicts key if present and reports whether it was cached.
func (c *Cache[K, V]) Remove(key K) bool {
	c.mutex.Lock()
	e, exists := c.entries[key]
	if !exists {
		c.mutex.Unlock()
		return false
	}
	c.detach(e)
	c.evictions.Add(1)
	c.mutex.Unlock()

	c.disposeAll([]*entry[K, V]{e})
	return true
}

// Contains reports whether key is cached, without touching recency.
func (c *Cache[K, V]) Contains(key K) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	_, exists := c.entries[key]
	return exists
}

// Keys returns the cached keys from most to least recently used.
func (c *Cache[K, V]) Keys() []K {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	keys := make([]K, 0, len(c.entries))
	for e := c.head.next; e != c.tail; e = e.next {
		keys = append(keys, e.key)
	}
	return keys
}

// Len returns the number of cached entries.
func (c *Cache[K, V]) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.entries)
}

// Stats returns the cache counters.
func (c *Cache[K, V]) Stats() Stats {
	c.mutex.Lock()
	entries := len(c.entries)
	c.mutex.Unlock()

	return Stats{
		Entries:   entries,
		Capacity:  c.capacity,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Creations: c.creations.Load(),
		Failures:  c.failures.Load(),
		Evictions: c.evictions.Load(),
	}
}

// Close evicts every entry and refuses further LockItem calls. Idle
// entries are disposed before Close returns; entries with outstanding
// handles are disposed on their last Release. Close is idempotent.
func (c *Cache[K, V]) Close() error {
	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		return nil
	}
	c.closed = true

	var victims []*entry[K, V]
	for e := c.head.next; e != c.tail; {
		next := e.next
		c.detach(e)
		c.evictions.Add(1)
		if e.refs == 0 {
			victims = append(victims, e)
		}
		e = next
	}
	c.mutex.Unlock()

	c.disposeAll(victims)
	return nil
}

// LRU doubly-linked list operations
func (c *Cache[K, V]) addToFront(e *entry[K, V]) {
	e.prev = c.head
	e.next = c.head.next
	c.head.next.prev = e
	c.head.next = e
}

func (c *Cache[K, V]) removeFromList(e *entry[K, V]) {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev = nil
	e.next = nil
}

func (c *Cache[K, V]) moveToFront(e *entry[K, V]) {
	c.removeFromList(e)
	c.addToFront(e)
}

// Handle is a scoped acquisition of a cached value. Release must be
// called exactly once; further calls are no-ops.
type Handle[K comparable, V any] struct {
	cache    *Cache[K, V]
	entry    *entry[K, V]
	released atomic.Bool
}

func (c *Cache[K, V]) newHandle(e *entry[K, V]) *Handle[K, V] {
	return &Handle[K, V]{cache: c, entry: e}
}

// Item returns the cached value.
func (h *Handle[K, V]) Item() V {
	return h.entry.value
}

// Key returns the key the handle was acquired for.
func (h *Handle[K, V]) Key() K {
	return h.entry.key
}

// Release marks the handle as no longer in use. It never disposes a
// value that is still cached.
func (h *Handle[K, V]) Release() {
	if h.released.Swap(true) {
		return
	}
	h.cache.release(h.entry)
}
