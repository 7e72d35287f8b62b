// Package dedupe tracks recently seen message ids so webhook redeliveries do
// not produce duplicate conversation turns. Best effort only: the cache is
// in-process and bounded, which matches the idempotent-acknowledgment
// guarantee (not exactly-once processing).
package dedupe

import (
	"sync"
	"time"
)

type Cache struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	ttl     time.Duration
	maxSize int
}

func New(ttl time.Duration, maxSize int) *Cache {
	return &Cache{
		seen:    make(map[string]time.Time),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Seen reports whether key was observed within the TTL and marks it
// otherwise. Empty keys are never deduplicated.
func (c *Cache) Seen(key string) bool {
	if key == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if ts, ok := c.seen[key]; ok && now.Sub(ts) < c.ttl {
		return true
	}
	if len(c.seen) >= c.maxSize {
		c.sweep(now)
	}
	c.seen[key] = now
	return false
}

// sweep drops expired entries; if everything is still live, the oldest entry
// goes so the map never outgrows maxSize. Must be called with mu held.
func (c *Cache) sweep(now time.Time) {
	var (
		oldestKey string
		oldestTS  time.Time
	)
	for k, ts := range c.seen {
		if now.Sub(ts) >= c.ttl {
			delete(c.seen, k)
			continue
		}
		if oldestKey == "" || ts.Before(oldestTS) {
			oldestKey, oldestTS = k, ts
		}
	}
	if len(c.seen) >= c.maxSize && oldestKey != "" {
		delete(c.seen, oldestKey)
	}
}

// Len reports the number of tracked keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
