package cache

import (
	"strings"
	"sync"
	"time"
)

type entry struct {
	value     interface{}
	expiresAt time.Time
}

// TTL is a small in-process cache for hot read paths (public listing pages).
// Entries expire lazily on access; Purge sweeps the rest.
type TTL struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
}

func NewTTL(ttl time.Duration) *TTL {
	return &TTL{
		entries: make(map[string]entry),
		ttl:     ttl,
	}
}

func (c *TTL) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if time.Now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()

		return nil, false
	}

	return e.value, true
}

func (c *TTL) Set(key string, value interface{}) {
	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// InvalidatePrefix drops every key under a prefix, used when a write makes a
// whole family of cached pages stale.
func (c *TTL) InvalidatePrefix(prefix string) {
	c.mu.Lock()

	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}

	c.mu.Unlock()
}

func (c *TTL) Purge() {
	now := time.Now()

	c.mu.Lock()

	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}

	c.mu.Unlock()
}

func (c *TTL) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}
