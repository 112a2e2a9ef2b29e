package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricCacheHits      = "storesync.cache.hits"
	metricCacheMisses    = "storesync.cache.misses"
	metricCacheItems     = "storesync.cache.items"
	metricCacheEvictions = "storesync.cache.evictions"
)

// CacheStatsProvider exposes the raw counters of a cache.
type CacheStatsProvider interface {
	CacheHits() int64
	CacheMisses() int64
	CacheItems() int64
	CacheEvictions() int64
}

// RegisterCacheMetrics publishes a cache's counters as observable gauges,
// read on every collection.
func RegisterCacheMetrics(mt metric.Meter, name string, provider CacheStatsProvider) error {
	if provider == nil {
		return nil
	}
	attrs := metric.WithAttributes(attribute.String("cache", name))

	gauges := []struct {
		name, desc, unit string
		read             func() int64
	}{
		{metricCacheHits, "Cache hit count", "{hit}", provider.CacheHits},
		{metricCacheMisses, "Cache miss count", "{miss}", provider.CacheMisses},
		{metricCacheItems, "Live cache entries", "{entry}", provider.CacheItems},
		{metricCacheEvictions, "Entries removed by the sweeper", "{entry}", provider.CacheEvictions},
	}

	for _, g := range gauges {
		read := g.read
		_, err := mt.Int64ObservableGauge(g.name,
			metric.WithDescription(g.desc),
			metric.WithUnit(g.unit),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(read(), attrs)
				return nil
			}),
		)
		if err != nil {
			return fmt.Errorf("create %s: %w", g.name, err)
		}
	}

	return nil
}
