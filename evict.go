package cache

import (
	"context"
	"sort"
	"time"
)

// evictTargetFactor is the fraction of the byte ceiling usage is reduced to
// when the ceiling is exceeded, so that every insert does not re-trigger eviction.
const evictTargetFactor = 0.8

// evictLocked enforces staleness and capacity bounds, c.mu must be held for writing.
//
// Expired entries go first, then entries with the lowest hit count until the
// byte ceiling (to 80% of it) and the entry count limit are satisfied.
func (c *Memory[V]) evictLocked(now time.Time) {
	for key, cacheEntry := range c.data {
		if !cacheEntry.exp.After(now) {
			delete(c.data, key)
			c.bytes -= cacheEntry.bytes
		}
	}

	evicted := 0

	if c.config.MaxBytes > 0 && c.bytes > c.config.MaxBytes {
		target := uint64(float64(c.config.MaxBytes) * evictTargetFactor)
		evicted += c.evictColdestLocked(func() bool { return c.bytes > target })
	}

	if c.config.MaxItems > 0 && len(c.data) > c.config.MaxItems {
		evicted += c.evictColdestLocked(func() bool { return len(c.data) > c.config.MaxItems })
	}

	if evicted == 0 {
		return
	}

	if c.log != nil {
		c.log.Debug(context.Background(), "evicted cache entries",
			"name", c.config.Name,
			"count", evicted)
	}

	if c.stat != nil {
		c.stat.Add(context.Background(), MetricEvict, float64(evicted), "name", c.config.Name)
	}
}

// evictColdestLocked removes entries with the lowest hit count while over holds,
// ties are broken by oldest storage time.
func (c *Memory[V]) evictColdestLocked(over func() bool) int {
	if !over() {
		return 0
	}

	type victim struct {
		key      string
		hits     uint64
		storedAt time.Time
	}

	victims := make([]victim, 0, len(c.data))

	for key, cacheEntry := range c.data {
		victims = append(victims, victim{
			key:      key,
			hits:     cacheEntry.hits.Load(),
			storedAt: cacheEntry.storedAt,
		})
	}

	sort.Slice(victims, func(i, j int) bool {
		if victims[i].hits != victims[j].hits {
			return victims[i].hits < victims[j].hits
		}

		return victims[i].storedAt.Before(victims[j].storedAt)
	})

	evicted := 0

	for _, v := range victims {
		if !over() {
			break
		}

		cacheEntry := c.data[v.key]

		delete(c.data, v.key)
		c.bytes -= cacheEntry.bytes
		evicted++
	}

	return evicted
}
