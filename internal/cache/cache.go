// Package cache is the in-memory TTL read cache placed in front of the
// stores. It counts hits and misses so its effectiveness can be reported.
package cache

import (
	"context"
	"math"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultTTL           = 30 * time.Second
	DefaultSweepInterval = time.Minute
)

// Config contains configuration for the cache
type Config struct {
	DefaultTTL    time.Duration
	SweepInterval time.Duration
	// Now replaces the clock used for expiry; nil means time.Now.
	Now func() time.Time
}

type entry struct {
	value     any
	expiresAt time.Time
}

// Metrics is a snapshot of the cache counters since start or the last reset.
type Metrics struct {
	HitRate           float64 `json:"hitRate"`
	MissRate          float64 `json:"missRate"`
	AvgResponseTimeMs float64 `json:"avgResponseTime"`
	ItemCount         int     `json:"itemCount"`
	Hits              int64   `json:"hits"`
	Misses            int64   `json:"misses"`
}

type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	// generation counts invalidations; guarded by mu.
	generation uint64

	defaultTTL    time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	hits        atomic.Int64
	misses      atomic.Int64
	responseNs  atomic.Int64
	sweptTotal  atomic.Int64
	startedFlag atomic.Bool

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}

	log zerolog.Logger
}

func New(cfg Config, log zerolog.Logger) *Cache {
	c := &Cache{
		entries:       make(map[string]entry),
		defaultTTL:    cfg.DefaultTTL,
		sweepInterval: cfg.SweepInterval,
		now:           cfg.Now,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
		log:           log,
	}
	if c.defaultTTL <= 0 {
		c.defaultTTL = DefaultTTL
	}
	if c.sweepInterval <= 0 {
		c.sweepInterval = DefaultSweepInterval
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Get returns a live entry. Expired entries are reported as misses and never
// returned.
func (c *Cache) Get(key string) (any, bool) {
	start := time.Now()
	value, ok := c.lookup(key)
	c.record(ok, time.Since(start))
	return value, ok
}

func (c *Cache) lookup(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

func (c *Cache) record(hit bool, elapsed time.Duration) {
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	c.responseNs.Add(int64(elapsed))
}

// Set stores value under key. A non-positive ttl uses the default.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
}

// GetOrLoad returns the cached value or calls load and caches its result.
// Load errors are returned and nothing is cached. The whole call counts as a
// single request; on a miss the load time is part of the response time.
func (c *Cache) GetOrLoad(key string, ttl time.Duration, load func() (any, error)) (any, error) {
	start := time.Now()
	if value, ok := c.lookup(key); ok {
		c.record(true, time.Since(start))
		return value, nil
	}

	c.mu.RLock()
	gen := c.generation
	c.mu.RUnlock()

	value, err := load()
	c.record(false, time.Since(start))
	if err != nil {
		return nil, err
	}
	c.setIfGeneration(key, value, ttl, gen)
	return value, nil
}

// setIfGeneration stores value only when no invalidation ran since gen was
// read, so a load that raced a write is returned but never cached.
func (c *Cache) setIfGeneration(key string, value any, ttl time.Duration, gen uint64) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return
	}
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(ttl)}
}

// Invalidate removes every key starting with prefix and returns how many
// entries were dropped.
func (c *Cache) Invalidate(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	removed := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Sweep drops expired entries.
func (c *Cache) Sweep() int {
	now := c.now()

	c.mu.Lock()
	removed := 0
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	c.mu.Unlock()

	c.sweptTotal.Add(int64(removed))
	return removed
}

func (c *Cache) Metrics() Metrics {
	hits := c.hits.Load()
	misses := c.misses.Load()
	m := Metrics{Hits: hits, Misses: misses, ItemCount: c.liveItems()}

	total := hits + misses
	if total == 0 {
		return m
	}
	m.HitRate = round2(float64(hits) / float64(total) * 100)
	m.MissRate = round2(100 - m.HitRate)
	m.AvgResponseTimeMs = round2(float64(c.responseNs.Load()) / float64(total) / float64(time.Millisecond))
	return m
}

func (c *Cache) ResetMetrics() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.responseNs.Store(0)
}

func (c *Cache) liveItems() int {
	now := c.now()
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, e := range c.entries {
		if now.Before(e.expiresAt) {
			n++
		}
	}
	return n
}

// CacheHits, CacheMisses, CacheItems and CacheEvictions report raw counters
// for the metrics exporter.
func (c *Cache) CacheHits() int64      { return c.hits.Load() }
func (c *Cache) CacheMisses() int64    { return c.misses.Load() }
func (c *Cache) CacheItems() int64     { return int64(c.liveItems()) }
func (c *Cache) CacheEvictions() int64 { return c.sweptTotal.Load() }

// Start runs the sweeper until Stop is called or ctx is done. It blocks.
func (c *Cache) Start(ctx context.Context) {
	if !c.startedFlag.CompareAndSwap(false, true) {
		return
	}
	defer close(c.doneCh)

	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	c.log.Info().Dur("interval", c.sweepInterval).Msg("cache sweeper started")
	for {
		select {
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.log.Debug().Int("removed", n).Msg("swept expired cache entries")
			}
		case <-c.stopCh:
			c.log.Info().Msg("cache sweeper stopping")
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop halts the sweeper and waits for it to exit.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	if c.startedFlag.Load() {
		<-c.doneCh
	}
}

// Key builds a deterministic key: params are sorted by name, so the same
// query always maps to the same entry.
func Key(prefix string, params map[string]string) string {
	if len(params) == 0 {
		return prefix
	}
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	return prefix + ":" + values.Encode()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
