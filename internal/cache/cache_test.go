package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCache(t *testing.T) (*Cache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return New(Config{Now: clock.Now}, zerolog.Nop()), clock
}

func TestCache_TTL(t *testing.T) {
	c, clock := newTestCache(t)

	c.Set("k", "v", 10*time.Second)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	clock.Advance(5 * time.Second)
	_, ok = c.Get("k")
	assert.True(t, ok)

	clock.Advance(5 * time.Second)
	v, ok = c.Get("k")
	assert.False(t, ok, "entry must not be returned at its expiry instant")
	assert.Nil(t, v)

	m := c.Metrics()
	assert.Equal(t, int64(2), m.Hits)
	assert.Equal(t, int64(1), m.Misses)
	assert.Equal(t, 66.67, m.HitRate)
	assert.Equal(t, 33.33, m.MissRate)
	assert.Equal(t, 100.0, m.HitRate+m.MissRate)
	assert.Zero(t, m.ItemCount)
}

func TestCache_DefaultTTL(t *testing.T) {
	c, clock := newTestCache(t)

	c.Set("k", 1, 0)
	clock.Advance(DefaultTTL - time.Second)
	_, ok := c.Get("k")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestCache_MetricsWithoutRequests(t *testing.T) {
	c, _ := newTestCache(t)

	m := c.Metrics()
	assert.Zero(t, m.HitRate)
	assert.Zero(t, m.MissRate)
	assert.Zero(t, m.AvgResponseTimeMs)
}

func TestCache_HitAndMissRatesSumTo100(t *testing.T) {
	c, _ := newTestCache(t)
	c.Set("a", 1, time.Minute)

	for i := 0; i < 7; i++ {
		c.Get("a")
	}
	for i := 0; i < 3; i++ {
		c.Get("missing")
	}

	m := c.Metrics()
	assert.Equal(t, 70.0, m.HitRate)
	assert.Equal(t, 30.0, m.MissRate)
	assert.GreaterOrEqual(t, m.AvgResponseTimeMs, 0.0)

	c.ResetMetrics()
	m = c.Metrics()
	assert.Zero(t, m.Hits)
	assert.Zero(t, m.Misses)
	assert.Equal(t, 1, m.ItemCount)
}

func TestCache_Invalidate(t *testing.T) {
	c, _ := newTestCache(t)
	c.Set("orders:limit=10", 1, time.Minute)
	c.Set("orders:limit=20&offset=20", 2, time.Minute)
	c.Set("products:limit=10", 3, time.Minute)

	assert.Equal(t, 2, c.Invalidate("orders:"))

	_, ok := c.Get("orders:limit=10")
	assert.False(t, ok)
	_, ok = c.Get("products:limit=10")
	assert.True(t, ok)
	assert.Zero(t, c.Invalidate("orders:"))
}

func TestCache_GetOrLoad(t *testing.T) {
	c, _ := newTestCache(t)
	calls := 0
	load := func() (any, error) {
		calls++
		return "loaded", nil
	}

	v, err := c.GetOrLoad("k", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, "loaded", v)

	v, err = c.GetOrLoad("k", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, "loaded", v)
	assert.Equal(t, 1, calls)

	m := c.Metrics()
	assert.Equal(t, int64(1), m.Hits)
	assert.Equal(t, int64(1), m.Misses)
}

func TestCache_GetOrLoadErrorIsNotCached(t *testing.T) {
	c, _ := newTestCache(t)

	_, err := c.GetOrLoad("k", time.Minute, func() (any, error) { return nil, errors.New("boom") })
	assert.EqualError(t, err, "boom")

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestCache_GetOrLoadRacingInvalidateIsNotCached(t *testing.T) {
	c, _ := newTestCache(t)

	v, err := c.GetOrLoad("jobs:1", time.Minute, func() (any, error) {
		// A writer commits and invalidates while the stale value is loading.
		c.Invalidate("jobs:")
		return "processing", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "processing", v)

	_, ok := c.Get("jobs:1")
	assert.False(t, ok, "a load that overlapped an invalidation must not be cached")

	v, err = c.GetOrLoad("jobs:1", time.Minute, func() (any, error) { return "completed", nil })
	require.NoError(t, err)
	assert.Equal(t, "completed", v)
	got, ok := c.Get("jobs:1")
	require.True(t, ok)
	assert.Equal(t, "completed", got)
}

func TestCache_Sweep(t *testing.T) {
	c, clock := newTestCache(t)
	c.Set("short", 1, time.Second)
	c.Set("long", 2, time.Hour)

	clock.Advance(2 * time.Second)
	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Metrics().ItemCount)
	assert.Equal(t, int64(1), c.CacheEvictions())
}

func TestCache_SweeperLifecycle(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	c := New(Config{SweepInterval: 5 * time.Millisecond, Now: clock.Now}, zerolog.Nop())
	c.Set("k", 1, time.Second)
	clock.Advance(time.Minute)

	go c.Start(context.Background())

	assert.Eventually(t, func() bool {
		return c.CacheEvictions() == 1
	}, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		c.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestCache_StopWithoutStart(t *testing.T) {
	c, _ := newTestCache(t)
	c.Stop()
	c.Stop()
}

func TestKey_IsDeterministic(t *testing.T) {
	a := Key("orders", map[string]string{"offset": "0", "limit": "10"})
	b := Key("orders", map[string]string{"limit": "10", "offset": "0"})

	assert.Equal(t, a, b)
	assert.Equal(t, "orders:limit=10&offset=0", a)
	assert.Equal(t, "checkpoint:orders", Key("checkpoint:orders", nil))
}
