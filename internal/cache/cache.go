// Package cache memoizes expensive calculation results for a short time.
package cache

import (
	"strings"
	"sync"
	"time"
)

const (
	DefaultTTL       = 30 * time.Second
	DefaultSoftLimit = 100
)

type entry struct {
	value  interface{}
	stored time.Time
	expiry time.Duration
}

// Calculations is a process-local TTL map safe for concurrent use.
// A nil *Calculations is a valid, always-empty cache.
type Calculations struct {
	mu        sync.Mutex
	entries   map[string]entry
	ttl       time.Duration
	softLimit int
	now       func() time.Time
}

// Option customizes a Calculations cache.
type Option func(*Calculations)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Calculations) { c.now = now }
}

// WithSoftLimit sets the size above which Set prunes expired entries.
func WithSoftLimit(n int) Option {
	return func(c *Calculations) {
		if n > 0 {
			c.softLimit = n
		}
	}
}

// New creates a cache whose entries default to ttl.
func New(ttl time.Duration, opts ...Option) *Calculations {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Calculations{
		entries:   make(map[string]entry),
		ttl:       ttl,
		softLimit: DefaultSoftLimit,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value stored under key if it is younger than both validity
// and its own expiry. Stale entries are removed. A zero validity means the
// cache default.
func (c *Calculations) Get(key string, validity time.Duration) (interface{}, bool) {
	if c == nil {
		return nil, false
	}
	if validity <= 0 {
		validity = c.ttl
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	limit := e.expiry
	if validity < limit {
		limit = validity
	}
	if c.now().Sub(e.stored) > limit {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key. A zero expiry means the cache default.
func (c *Calculations) Set(key string, value interface{}, expiry time.Duration) {
	if c == nil {
		return
	}
	if expiry <= 0 {
		expiry = c.ttl
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, stored: c.now(), expiry: expiry}
	if len(c.entries) > c.softLimit {
		c.cleanupLocked()
	}
}

// Cleanup removes every expired entry and reports how many were dropped.
func (c *Calculations) Cleanup() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cleanupLocked()
}

// Len returns the number of stored entries, expired or not.
func (c *Calculations) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Calculations) cleanupLocked() int {
	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if now.Sub(e.stored) > e.expiry {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Key builds a composite fingerprint. Callers include the reserve values so a
// reserve change never hits an entry computed for older state.
func Key(op, amount, venue, pool, reserve0, reserve1 string) string {
	return strings.Join([]string{op, amount, strings.ToLower(venue), strings.ToLower(pool), reserve0, reserve1}, "|")
}
