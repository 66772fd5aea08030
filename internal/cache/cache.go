package cache

import (
	"container/list"
	"regexp"
	"strings"
	"sync"
	"time"
)

// entry is a single cached value together with its expiry bookkeeping.
type entry[V any] struct {
	key       string
	value     V
	createdAt time.Time
	ttl       time.Duration
}

// expired reports whether the entry's age exceeds its TTL at the given time.
// A non-positive TTL means the entry never expires.
func (e *entry[V]) expired(now time.Time) bool {
	if e.ttl <= 0 {
		return false
	}
	return now.Sub(e.createdAt) > e.ttl
}

// Cache is a size-bounded key-value store with per-entry TTL and
// least-recently-used eviction.
//
// All operations are safe for concurrent use. A single mutex guards the
// map and the recency list; every operation is a short pointer shuffle, so
// finer-grained locking would buy nothing over the contention it removes.
type Cache[V any] struct {
	mu         sync.Mutex
	maxEntries int
	ll         *list.List
	items      map[string]*list.Element

	// now is the clock used for expiry decisions. Tests substitute a fake.
	now func() time.Time
}

// Option configures a Cache.
type Option[V any] func(*Cache[V])

// WithClock overrides the time source used for TTL checks.
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *Cache[V]) {
		c.now = now
	}
}

// New creates a cache that holds at most maxEntries values.
// When full, inserting a new key evicts the least-recently-used entry.
func New[V any](maxEntries int, opts ...Option[V]) *Cache[V] {
	c := &Cache[V]{
		maxEntries: maxEntries,
		ll:         list.New(),
		items:      make(map[string]*list.Element),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value stored under key, if present and unexpired.
// A hit marks the entry as most recently used. An expired entry is removed
// and reported as a miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.items[key]
	if !ok {
		return zero, false
	}

	ent := elem.Value.(*entry[V])
	if ent.expired(c.now()) {
		c.removeElement(elem)
		return zero, false
	}

	c.ll.MoveToFront(elem)
	return ent.value, true
}

// Put stores value under key with the given TTL, replacing any existing
// entry for the key in one step. If the cache is full, the least-recently-used
// entry is evicted first.
func (c *Cache[V]) Put(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		ent := elem.Value.(*entry[V])
		ent.value = value
		ent.createdAt = c.now()
		ent.ttl = ttl
		c.ll.MoveToFront(elem)
		return
	}

	if c.maxEntries > 0 && c.ll.Len() >= c.maxEntries {
		if oldest := c.ll.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}

	elem := c.ll.PushFront(&entry[V]{
		key:       key,
		value:     value,
		createdAt: c.now(),
		ttl:       ttl,
	})
	c.items[key] = elem
}

// Invalidate removes the entry for key. It reports whether an entry existed.
func (c *Cache[V]) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeElement(elem)
	return true
}

// InvalidatePattern removes every entry whose key matches the glob pattern,
// where '*' matches any run of characters (slashes included) and '?' matches
// one character. It returns the number of entries removed.
func (c *Cache[V]) InvalidatePattern(pattern string) int {
	re := compileGlob(pattern)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, elem := range c.items {
		if re.MatchString(key) {
			c.removeElement(elem)
			removed++
		}
	}
	return removed
}

// compileGlob converts a glob pattern to an anchored regular expression.
// Unlike path.Match, '*' here crosses path separators, so a pattern like
// "https://example.com/*" covers nested paths too.
func compileGlob(pattern string) *regexp.Regexp {
	quoted := regexp.QuoteMeta(pattern)
	quoted = strings.ReplaceAll(quoted, `\*`, `.*`)
	quoted = strings.ReplaceAll(quoted, `\?`, `.`)
	return regexp.MustCompile("^" + quoted + "$")
}

// Len returns the number of entries currently held, including entries that
// have expired but not yet been touched.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Purge removes all entries.
func (c *Cache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	clear(c.items)
}

// removeElement unlinks an element from both the list and the map.
// Caller must hold c.mu.
func (c *Cache[V]) removeElement(elem *list.Element) {
	c.ll.Remove(elem)
	delete(c.items, elem.Value.(*entry[V]).key)
}
