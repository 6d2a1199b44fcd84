// Package cache provides a process-wide key/value store with per-entry
// expiration, used for read-through caching of query results.
//
// Thread Safety:
//
//	Cache is safe for concurrent use. A Contains/compute/Add sequence is not
//	atomic across calls: two callers may both compute a value on a miss, and
//	the first Add wins. A value computed from data that may be invalidated
//	while it is being computed should be stored with AddAt, which refuses it
//	once DeletePrefix has run on its prefix.
package cache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTTL is used when New is given a non-positive duration.
const DefaultTTL = 5 * time.Minute

type entry struct {
	value     any
	expiresAt time.Time
}

// Stats is a point-in-time view of cache counters.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"`
}

type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	gens    map[string]uint64
	ttl     time.Duration
	now     func() time.Time

	hits   int64
	misses int64
}

// New creates a Cache whose entries live for ttl unless Add is given its own.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		entries: make(map[string]entry),
		gens:    make(map[string]uint64),
		ttl:     ttl,
		now:     time.Now,
	}
}

// TTL returns the default entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get returns the live value stored under key.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		c.removeExpired(key)
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	atomic.AddInt64(&c.hits, 1)
	return e.value, true
}

// Contains reports whether key holds a live value. It does not touch the
// hit/miss counters.
func (c *Cache) Contains(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return ok && c.now().Before(e.expiresAt)
}

// Add stores value under key only if no live value is present, and reports
// whether it was stored. A non-positive ttl uses the cache default.
func (c *Cache) Add(key string, value any, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addLocked(key, value, ttl)
}

// Generation returns the invalidation counter of prefix. It changes every
// time DeletePrefix is called with the same prefix.
func (c *Cache) Generation(prefix string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gens[prefix]
}

// AddAt is Add for a value computed after Generation(prefix) returned gen.
// The value is dropped when prefix has been invalidated since.
func (c *Cache) AddAt(key, prefix string, gen uint64, value any, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[prefix] != gen {
		return false
	}
	return c.addLocked(key, value, ttl)
}

func (c *Cache) addLocked(key string, value any, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = c.ttl
	}
	now := c.now()
	if e, ok := c.entries[key]; ok && now.Before(e.expiresAt) {
		return false
	}
	c.entries[key] = entry{value: value, expiresAt: now.Add(ttl)}
	return true
}

// DeletePrefix removes every entry whose key starts with prefix, bumps the
// generation of prefix, and returns how many entries were removed.
func (c *Cache) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[prefix]++
	n := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Sweep drops expired entries and returns how many were removed.
func (c *Cache) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Run sweeps expired entries every interval until ctx is done.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = c.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

func (c *Cache) Stats() Stats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return Stats{
		Hits:    atomic.LoadInt64(&c.hits),
		Misses:  atomic.LoadInt64(&c.misses),
		Entries: n,
	}
}

// removeExpired deletes key if it is still expired once the write lock is
// held; a concurrent Add may have replaced it.
func (c *Cache) removeExpired(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok && !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
	}
}
