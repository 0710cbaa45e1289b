package memory

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chitchat-ai/chitchat/pkg/models"
)

const (
	// DefaultTTL is how long an entry stays live after insertion.
	DefaultTTL = 5 * time.Minute
	// DefaultMaxEntries bounds the number of live entries.
	DefaultMaxEntries = 50
)

// Cache is an exact-match response cache held in process memory.
// Expired entries are removed when they are looked up. When an insert would
// exceed the entry limit, the oldest-inserted entry is evicted.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]models.CacheEntry
	order      []string // insertion order, oldest first
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithMaxEntries overrides DefaultMaxEntries.
func WithMaxEntries(n int) Option {
	return func(c *Cache) { c.maxEntries = n }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates an empty Cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:    make(map[string]models.CacheEntry),
		ttl:        DefaultTTL,
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxEntries <= 0 {
		c.maxEntries = DefaultMaxEntries
	}
	return c
}

// Key builds the cache key for a provider and prompt. The prompt is trimmed
// and lower-cased so that trivially different drafts share an entry.
func Key(provider models.ProviderID, prompt string) string {
	return string(provider) + ":" + strings.ToLower(strings.TrimSpace(prompt))
}

// Get retrieves a cached value. Returns false if not found or expired.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return "", false
	}

	if c.now().Sub(entry.CreatedAt) > c.ttl {
		c.remove(key)
		c.misses.Add(1)
		return "", false
	}

	c.hits.Add(1)
	return entry.Value, true
}

// Put stores a value. An existing entry for key is replaced and counts as a
// fresh insertion.
func (c *Cache) Put(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.remove(key)
	} else if len(c.entries) >= c.maxEntries {
		c.remove(c.order[0])
		c.evictions.Add(1)
	}

	c.entries[key] = models.CacheEntry{Key: key, Value: value, CreatedAt: c.now()}
	c.order = append(c.order, key)
}

// Len returns the number of stored entries, including expired entries not yet
// looked up.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Keys returns the stored keys, oldest first.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

// Stats returns cache performance metrics.
func (c *Cache) Stats() (models.CacheStats, error) {
	return models.CacheStats{
		Entries:   int64(c.Len()),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}, nil
}

// Clear removes cache entries. If expiredOnly is true, only expired entries are removed.
func (c *Cache) Clear(expiredOnly bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !expiredOnly {
		n := len(c.entries)
		c.entries = make(map[string]models.CacheEntry)
		c.order = nil
		return n
	}

	now := c.now()
	removed := 0
	for _, key := range append([]string(nil), c.order...) {
		if now.Sub(c.entries[key].CreatedAt) > c.ttl {
			c.remove(key)
			removed++
		}
	}
	return removed
}

// remove deletes key from the map and the insertion order. Caller holds mu.
func (c *Cache) remove(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
