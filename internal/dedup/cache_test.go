package dedup

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache() (*Cache, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	return New(Options{Now: clock.Now}), clock
}

func TestCache_SeenRecordsFirstObservation(t *testing.T) {
	c, _ := newTestCache()

	assert.False(t, c.Seen("sig1"))
	assert.True(t, c.Seen("sig1"))
	assert.True(t, c.Contains("sig1"))
	assert.False(t, c.Contains("sig2"))
	assert.Equal(t, 1, c.Len())
}

func TestCache_EmptySignatureNeverDuplicate(t *testing.T) {
	c, _ := newTestCache()

	assert.False(t, c.Seen(""))
	assert.False(t, c.Seen(""))
	assert.Equal(t, 0, c.Len())
}

func TestCache_EvictRemovesOnlyExpired(t *testing.T) {
	c, clock := newTestCache()

	c.Seen("old")
	clock.Advance(30 * time.Second)
	c.Seen("young")
	clock.Advance(31 * time.Second)

	assert.Equal(t, 1, c.Evict())
	assert.False(t, c.Contains("old"))
	assert.True(t, c.Contains("young"))

	// After eviction the signature may be processed again.
	assert.False(t, c.Seen("old"))
}

func TestCache_EntryExactlyAtHorizonKept(t *testing.T) {
	c, clock := newTestCache()

	c.Seen("edge")
	clock.Advance(DefaultTTL)

	assert.Equal(t, 0, c.Evict())
	assert.True(t, c.Contains("edge"))
}

func TestCache_EvictCompactsQueue(t *testing.T) {
	c, clock := newTestCache()

	for i := 0; i < 5000; i++ {
		c.Seen(fmt.Sprintf("sig-%d", i))
	}
	clock.Advance(2 * DefaultTTL)

	assert.Equal(t, 5000, c.Evict())
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, c.head)
	assert.Empty(t, c.q)
}

func TestCache_RunStopsWithContext(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	c := New(Options{Now: clock.Now, EvictInterval: 5 * time.Millisecond})

	c.Seen("sig")
	clock.Advance(2 * DefaultTTL)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
