package price

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// CachedSource memoizes another source for a fixed TTL. Concurrent misses
// for the same asset share one upstream call.
type CachedSource struct {
	src   Source
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	price     float64
	fetchedAt time.Time
}

var _ Source = (*CachedSource)(nil)

// NewCachedSource wraps src. A non-positive ttl disables caching.
func NewCachedSource(src Source, ttl time.Duration) *CachedSource {
	return &CachedSource{
		src:     src,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// Price returns a cached price younger than the TTL or fetches a fresh one.
// Failures are not cached.
func (c *CachedSource) Price(ctx context.Context, asset string) (float64, error) {
	key := NormalizeSymbol(asset)

	if c.ttl > 0 {
		c.mu.Lock()
		e, ok := c.entries[key]
		c.mu.Unlock()
		if ok && c.now().Sub(e.fetchedAt) < c.ttl {
			return e.price, nil
		}
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		p, err := c.src.Price(ctx, key)
		if err != nil {
			return 0.0, err
		}
		c.mu.Lock()
		c.entries[key] = cacheEntry{price: p, fetchedAt: c.now()}
		c.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}
