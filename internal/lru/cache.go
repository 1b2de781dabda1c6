// Package lru implements a generic, thread-safe LRU cache with an optional
// entry lifetime.
//
// Get, Put and Len are O(1): a map for lookup plus a doubly linked list for
// eviction order. Expired entries are dropped lazily when touched.
package lru

import (
	"sync"
	"time"
)

type node[K comparable, V any] struct {
	key     K
	val     V
	expires time.Time // zero means never
	prev    *node[K, V]
	next    *node[K, V]
}

// Stats counts cache outcomes since creation.
type Stats struct {
	Hits        uint64
	Misses      uint64
	Evictions   uint64
	Expirations uint64
}

// HitRate is Hits / (Hits + Misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Option configures a Cache.
type Option[K comparable, V any] func(*Cache[K, V])

// WithTTL sets the default lifetime of entries added with Put.
func WithTTL[K comparable, V any](ttl time.Duration) Option[K, V] {
	return func(c *Cache[K, V]) { c.ttl = ttl }
}

// WithOnEvict registers a callback for entries removed by capacity pressure
// or expiry. It runs with the cache lock held and must not call back into
// the cache.
func WithOnEvict[K comparable, V any](fn func(K, V)) Option[K, V] {
	return func(c *Cache[K, V]) { c.onEvict = fn }
}

// Cache is a generic, thread-safe LRU cache.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	onEvict  func(K, V)
	items    map[K]*node[K, V]
	head     *node[K, V] // most recently used (sentinel)
	tail     *node[K, V] // least recently used (sentinel)
	stats    Stats
	now      func() time.Time
}

// New creates a cache with the given capacity. Panics if capacity < 1.
func New[K comparable, V any](capacity int, opts ...Option[K, V]) *Cache[K, V] {
	if capacity < 1 {
		panic("lru: capacity must be >= 1")
	}

	head := &node[K, V]{}
	tail := &node[K, V]{}
	head.next = tail
	tail.prev = head

	c := &Cache[K, V]{
		capacity: capacity,
		items:    make(map[K]*node[K, V], capacity),
		head:     head,
		tail:     tail,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value for key if it is present and unexpired, marking it
// most recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.live(key)
	if !ok {
		c.stats.Misses++
		var zero V
		return zero, false
	}
	c.stats.Hits++
	c.moveToFront(n)
	return n.val, true
}

// Put inserts or replaces key using the cache's default TTL; without one the
// entry never expires. If the cache is full the least recently used entry is
// evicted and its key returned.
func (c *Cache[K, V]) Put(key K, val V) (K, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expires time.Time
	if c.ttl > 0 {
		expires = c.now().Add(c.ttl)
	}

	if n, ok := c.items[key]; ok {
		n.val = val
		n.expires = expires
		c.moveToFront(n)
		var zero K
		return zero, false
	}

	var evictedKey K
	evicted := false
	if len(c.items) >= c.capacity {
		victim := c.tail.prev
		c.drop(victim)
		c.stats.Evictions++
		if c.onEvict != nil {
			c.onEvict(victim.key, victim.val)
		}
		evictedKey = victim.key
		evicted = true
	}

	n := &node[K, V]{key: key, val: val, expires: expires}
	c.items[key] = n
	c.pushFront(n)

	return evictedKey, evicted
}

// Len returns the number of entries, counting expired ones not yet dropped.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Metrics returns a copy of the hit/miss/eviction counters.
func (c *Cache[K, V]) Metrics() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// --- internal operations (caller must hold lock) ---

// live looks key up, expiring it if its time has passed.
func (c *Cache[K, V]) live(key K) (*node[K, V], bool) {
	n, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if c.expired(n) {
		c.expire(n)
		return nil, false
	}
	return n, true
}

func (c *Cache[K, V]) expired(n *node[K, V]) bool {
	return !n.expires.IsZero() && !c.now().Before(n.expires)
}

func (c *Cache[K, V]) expire(n *node[K, V]) {
	c.drop(n)
	c.stats.Expirations++
	if c.onEvict != nil {
		c.onEvict(n.key, n.val)
	}
}

func (c *Cache[K, V]) drop(n *node[K, V]) {
	c.remove(n)
	delete(c.items, n.key)
}

func (c *Cache[K, V]) remove(n *node[K, V]) {
	n.prev.next = n.next
	n.next.prev = n.prev
	n.prev = nil
	n.next = nil
}

func (c *Cache[K, V]) pushFront(n *node[K, V]) {
	n.next = c.head.next
	n.prev = c.head
	c.head.next.prev = n
	c.head.next = n
}

func (c *Cache[K, V]) moveToFront(n *node[K, V]) {
	c.remove(n)
	c.pushFront(n)
}
