package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	cacheHits    = instrument{"codetree.cache.hits", "Cache lookups served from memory", "{lookup}"}
	cacheMisses  = instrument{"codetree.cache.misses", "Cache lookups not found in memory", "{lookup}"}
	cacheEntries = instrument{"codetree.cache.entries", "Entries held by the cache", "{entry}"}
)

const attrCache = "cache"

// CacheStatsProvider exposes the counters of an in-process cache.
type CacheStatsProvider interface {
	CacheHits() int64
	CacheMisses() int64
	CacheEntries() int64
}

// RegisterCacheMetrics registers observable instruments reading stats on
// every collection. A nil stats registers nothing.
func RegisterCacheMetrics(mt metric.Meter, name string, stats CacheStatsProvider) error {
	if stats == nil {
		return nil
	}

	b := newMetricBuilder(mt)
	hits := b.observableCounter(cacheHits)
	misses := b.observableCounter(cacheMisses)
	entries := b.gauge(cacheEntries)

	if b.err != nil {
		return b.err
	}

	attrs := metric.WithAttributes(attribute.String(attrCache, name))

	_, err := mt.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(hits, stats.CacheHits(), attrs)
		o.ObserveInt64(misses, stats.CacheMisses(), attrs)
		o.ObserveInt64(entries, stats.CacheEntries(), attrs)

		return nil
	}, hits, misses, entries)
	if err != nil {
		return fmt.Errorf("register cache callback: %w", err)
	}

	return nil
}
