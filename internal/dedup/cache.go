// Package dedup suppresses repeated transaction signatures within a
// bounded time window.
package dedup

import (
	"context"
	"sync"
	"time"
)

// Default eviction settings.
const (
	DefaultTTL           = 60 * time.Second
	DefaultEvictInterval = 60 * time.Second
)

// Options configures Cache.
type Options struct {
	TTL           time.Duration    // entry lifetime, default 60s
	EvictInterval time.Duration    // Run tick, default 60s
	Now           func() time.Time // clock, default time.Now
}

// Cache records first-seen times of signatures. Entries older than TTL are
// dropped by Evict, after which the same signature is accepted again.
type Cache struct {
	mu   sync.Mutex
	m    map[string]time.Time
	q    []entry // insertion order
	head int

	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
}

type entry struct {
	sig    string
	seenAt time.Time
}

// New creates a cache.
func New(opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.EvictInterval <= 0 {
		opts.EvictInterval = DefaultEvictInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		m:        make(map[string]time.Time),
		ttl:      opts.TTL,
		interval: opts.EvictInterval,
		now:      opts.Now,
	}
}

// Seen reports whether sig was already recorded; if not, it records it.
// An empty signature is never a duplicate and is not recorded.
func (c *Cache) Seen(sig string) bool {
	if sig == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.m[sig]; ok {
		return true
	}
	now := c.now()
	c.m[sig] = now
	c.q = append(c.q, entry{sig: sig, seenAt: now})
	return false
}

// Contains reports whether sig is recorded without recording it.
func (c *Cache) Contains(sig string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.m[sig]
	return ok
}

// Len returns the number of recorded signatures.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

// Evict removes entries older than TTL and returns how many were removed.
func (c *Cache) Evict() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-c.ttl)
	removed := 0
	for c.head < len(c.q) {
		it := c.q[c.head]
		if !it.seenAt.Before(cutoff) {
			break
		}
		if seenAt, ok := c.m[it.sig]; ok && seenAt.Equal(it.seenAt) {
			delete(c.m, it.sig)
			removed++
		}
		c.head++
	}

	if c.head > 4096 && c.head*2 > len(c.q) {
		c.q = append(make([]entry, 0, len(c.q)-c.head), c.q[c.head:]...)
		c.head = 0
	}
	return removed
}

// Run evicts every EvictInterval until ctx is done.
func (c *Cache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Evict()
		}
	}
}
