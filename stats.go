package cache

import (
	"sort"
	"time"
)

// Metric names, reported with a "name" label of cache instance.
const (
	MetricHit     = "cache_hit"
	MetricMiss    = "cache_miss"
	MetricExpired = "cache_expired"
	MetricWrite   = "cache_write"
	MetricDelete  = "cache_delete"
	MetricEvict   = "cache_evict"
	MetricItems   = "cache_items"
	MetricBytes   = "cache_bytes"
	MetricBuild   = "cache_build"
	MetricFailed  = "cache_failed"
	MetricRetry   = "cache_retry"
)

// maxHotKeys limits the HotKeys list of a Snapshot.
const maxHotKeys = 10

// HotKey is a frequently read cache key.
type HotKey struct {
	Key  string
	Hits uint64
}

// Snapshot is a point-in-time view of cache state and lifetime counters.
type Snapshot struct {
	// Items is the number of live entries.
	Items int

	// Bytes is cumulative approximate size of live entries.
	Bytes uint64

	// Hits and Misses accumulate since cache creation,
	// expired reads count as misses.
	Hits   uint64
	Misses uint64

	// HitRatio is Hits / (Hits + Misses), 0 for an idle cache.
	HitRatio float64

	// HotKeys lists up to 10 most read live keys, hottest first.
	HotKeys []HotKey
}

// Stats returns a snapshot for observability, it is not part of the hot path.
func (c *Memory[V]) Stats() Snapshot {
	now := time.Now()

	c.mu.RLock()

	bytes := uint64(0)
	hot := make([]HotKey, 0, len(c.data))

	for key, cacheEntry := range c.data {
		if cacheEntry.exp.After(now) {
			bytes += cacheEntry.bytes
			hot = append(hot, HotKey{Key: key, Hits: cacheEntry.hits.Load()})
		}
	}

	c.mu.RUnlock()

	sort.Slice(hot, func(i, j int) bool {
		if hot[i].Hits != hot[j].Hits {
			return hot[i].Hits > hot[j].Hits
		}

		return hot[i].Key < hot[j].Key
	})

	items := len(hot)

	if len(hot) > maxHotKeys {
		hot = hot[:maxHotKeys]
	}

	hits := c.hitCount.Load()
	misses := c.missCount.Load()

	ratio := 0.0
	if hits+misses > 0 {
		ratio = float64(hits) / float64(hits+misses)
	}

	return Snapshot{
		Items:    items,
		Bytes:    bytes,
		Hits:     hits,
		Misses:   misses,
		HitRatio: ratio,
		HotKeys:  hot,
	}
}
