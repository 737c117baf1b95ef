package cache

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bool64/ctxd"
	"github.com/bool64/stats"
)

// entry is a cache entry.
type entry[V any] struct {
	val      V
	exp      time.Time
	storedAt time.Time
	bytes    uint64
	hits     atomic.Uint64
}

// entryView is an immutable copy of an entry, safe to use outside of the lock.
type entryView[V any] struct {
	val V
	exp time.Time
}

func (e entryView[V]) Value() V {
	return e.val
}

func (e entryView[V]) ExpireAt() time.Time {
	return e.exp
}

// MemoryConfig controls in-memory cache instance.
type MemoryConfig struct {
	// Logger is an instance of contextualized logger, can be nil.
	Logger ctxd.Logger

	// Stats is metrics collector, can be nil.
	Stats stats.Tracker

	// Name is cache instance name, used in stats and logging.
	Name string

	// TimeToLive is delay before entry expiration, default 5m.
	TimeToLive time.Duration

	// MaxItems limits the number of resident entries, 0 means no limit.
	//
	// When the limit is exceeded, entries with the lowest hit count are
	// evicted until the count is back under the limit.
	MaxItems int

	// MaxBytes is a soft ceiling for cumulative approximate entry size, 0 means no limit.
	//
	// When the ceiling is exceeded, entries with the lowest hit count are
	// evicted until usage falls to 80% of the ceiling. A single value larger
	// than the whole ceiling is rejected from caching with ErrValueTooLarge.
	MaxBytes uint64

	// DeleteExpiredJobInterval is delay between two consecutive janitor runs, default 1m.
	DeleteExpiredJobInterval time.Duration

	// ItemsCountReportInterval is items count metric report interval, default 1m.
	ItemsCountReportInterval time.Duration

	// ExpirationJitter is a fraction of TTL to randomize, default 0.1.
	// Use -1 to disable.
	// If enabled, entry TTL will be randomly altered in bounds of ±(ExpirationJitter * TTL / 2).
	ExpirationJitter float64
}

var (
	_ Store[int]  = &Memory[int]{}
	_ Walker[int] = &Memory[int]{}
)

// Memory is an in-memory cache store.
type Memory[V any] struct {
	mu     sync.RWMutex
	data   map[string]*entry[V]
	bytes  uint64 // Cumulative approximate size of resident entries.
	closed chan struct{}
	once   sync.Once

	hitCount  atomic.Uint64
	missCount atomic.Uint64

	config MemoryConfig
	log    ctxd.Logger
	stat   stats.Tracker
}

// NewMemory creates an instance of in-memory cache store with optional configuration.
func NewMemory[V any](cfg ...MemoryConfig) *Memory[V] {
	config := MemoryConfig{}

	if len(cfg) >= 1 {
		config = cfg[0]
	}

	if config.TimeToLive == 0 {
		config.TimeToLive = 5 * time.Minute
	}

	if config.DeleteExpiredJobInterval == 0 {
		config.DeleteExpiredJobInterval = time.Minute
	}

	if config.ItemsCountReportInterval == 0 {
		config.ItemsCountReportInterval = time.Minute
	}

	if config.ExpirationJitter == 0 {
		config.ExpirationJitter = 0.1
	}

	c := &Memory[V]{
		data:   map[string]*entry[V]{},
		config: config,
		log:    config.Logger,
		stat:   config.Stats,
		closed: make(chan struct{}),
	}

	if c.stat != nil {
		go c.reportItemsCount()
	}

	go c.janitor()

	return c
}

// Read gets value.
func (c *Memory[V]) Read(ctx context.Context, key string) (V, error) {
	var zero V

	if SkipRead(ctx) {
		return zero, ErrNotFound
	}

	c.mu.RLock()
	closed := c.data == nil
	cacheEntry, ok := c.data[key]

	// Entry fields are copied under the lock, ExpireAll mutates them in place.
	var val V

	var exp time.Time

	if ok {
		val = cacheEntry.val
		exp = cacheEntry.exp
	}
	c.mu.RUnlock()

	if closed {
		return zero, ErrClosed
	}

	if !ok {
		c.missCount.Add(1)

		if c.log != nil {
			c.log.Debug(ctx, "cache miss",
				"name", c.config.Name,
				"key", key)
		}

		if c.stat != nil {
			c.stat.Add(ctx, MetricMiss, 1, "name", c.config.Name)
		}

		return zero, ErrNotFound
	}

	if exp.Before(time.Now()) {
		c.missCount.Add(1)

		if c.log != nil {
			c.log.Debug(ctx, "cache key expired",
				"name", c.config.Name,
				"key", key)
		}

		if c.stat != nil {
			c.stat.Add(ctx, MetricExpired, 1, "name", c.config.Name)
		}

		return zero, expiredError[V]{val: val, exp: exp}
	}

	cacheEntry.hits.Add(1)
	c.hitCount.Add(1)

	if c.stat != nil {
		c.stat.Add(ctx, MetricHit, 1, "name", c.config.Name)
	}

	if c.log != nil {
		c.log.Debug(ctx, "cache hit",
			"name", c.config.Name,
			"key", key)
	}

	return val, nil
}

// Write sets value.
//
// A fresh entry starts with hit count 1 so that it outranks never-read
// entries during capacity eviction.
func (c *Memory[V]) Write(ctx context.Context, key string, v V) error {
	ttl := TTL(ctx)
	if ttl == DefaultTTL {
		ttl = c.config.TimeToLive
	}

	if ttl == SkipWriteTTL {
		return nil
	}

	if c.config.ExpirationJitter > 0 {
		ttl += time.Duration(float64(ttl) * c.config.ExpirationJitter * (rand.Float64() - 0.5))
	}

	// Serialization happens outside of the critical section.
	size := approxSize(key, v)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.data == nil {
		if c.log != nil {
			c.log.Debug(ctx, "writing to a closed cache", "name", c.config.Name, "key", key)
		}

		return ErrClosed
	}

	if c.config.MaxBytes > 0 && size > c.config.MaxBytes {
		if c.log != nil {
			c.log.Warn(ctx, "cache value rejected",
				"name", c.config.Name,
				"key", key,
				"bytes", size)
		}

		return fmt.Errorf("%w: %d bytes", ErrValueTooLarge, size)
	}

	if prev, ok := c.data[key]; ok {
		c.bytes -= prev.bytes
	}

	now := time.Now()
	cacheEntry := &entry[V]{val: v, exp: now.Add(ttl), storedAt: now, bytes: size}
	cacheEntry.hits.Store(1)

	c.data[key] = cacheEntry
	c.bytes += size

	c.evictLocked(now)

	if c.log != nil {
		c.log.Debug(ctx, "wrote to cache",
			"name", c.config.Name,
			"key", key,
			"bytes", size,
			"ttl", ttl)
	}

	if c.stat != nil {
		c.stat.Add(ctx, MetricWrite, 1, "name", c.config.Name)
	}

	return nil
}

// Delete removes an entry regardless of remaining ttl.
func (c *Memory[V]) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.data == nil {
		return ErrClosed
	}

	cacheEntry, ok := c.data[key]
	if !ok {
		return ErrNotFound
	}

	delete(c.data, key)
	c.bytes -= cacheEntry.bytes

	if c.log != nil {
		c.log.Debug(ctx, "deleted cache entry", "name", c.config.Name, "key", key)
	}

	if c.stat != nil {
		c.stat.Add(ctx, MetricDelete, 1, "name", c.config.Name)
	}

	return nil
}

// ExpireAll marks all entries as expired.
func (c *Memory[V]) ExpireAll() {
	now := time.Now()

	c.mu.Lock()
	for _, cacheEntry := range c.data {
		cacheEntry.exp = now
	}
	c.mu.Unlock()
}

// RemoveAll deletes all entries.
func (c *Memory[V]) RemoveAll() {
	c.mu.Lock()
	if c.data != nil {
		c.data = make(map[string]*entry[V])
		c.bytes = 0
	}
	c.mu.Unlock()
}

// Close stops the janitor and deactivates the store.
func (c *Memory[V]) Close() {
	c.once.Do(func() {
		close(c.closed)
	})
}

// Len returns number of elements in cache.
func (c *Memory[V]) Len() int {
	c.mu.RLock()
	cnt := len(c.data)
	c.mu.RUnlock()

	return cnt
}

// Walk walks cached entries.
func (c *Memory[V]) Walk(walkFn func(key string, e Entry[V]) error) (int, error) {
	c.mu.RLock()

	if c.data == nil {
		c.mu.RUnlock()

		return 0, ErrClosed
	}

	snapshot := make(map[string]entryView[V], len(c.data))
	for k, cacheEntry := range c.data {
		snapshot[k] = entryView[V]{val: cacheEntry.val, exp: cacheEntry.exp}
	}
	c.mu.RUnlock()

	n := 0

	for k, cacheEntry := range snapshot {
		if err := walkFn(k, cacheEntry); err != nil {
			return n, err
		}

		n++
	}

	return n, nil
}

func (c *Memory[V]) janitor() {
	ticker := time.NewTicker(c.config.DeleteExpiredJobInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			if c.data != nil {
				c.evictLocked(time.Now())
			}
			c.mu.Unlock()
		case <-c.closed:
			c.mu.Lock()
			c.data = nil
			c.bytes = 0
			c.mu.Unlock()

			return
		}
	}
}

func (c *Memory[V]) reportItemsCount() {
	ticker := time.NewTicker(c.config.ItemsCountReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.RLock()
			closed := c.data == nil
			count := len(c.data)
			bytes := c.bytes
			c.mu.RUnlock()

			if closed {
				return
			}

			if c.log != nil {
				c.log.Debug(context.Background(), "cache items count",
					"name", c.config.Name,
					"count", count,
					"bytes", bytes)
			}

			c.stat.Set(context.Background(), MetricItems, float64(count), "name", c.config.Name)
			c.stat.Set(context.Background(), MetricBytes, float64(bytes), "name", c.config.Name)
		case <-c.closed:
			return
		}
	}
}
