package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/bool64/ctxd"
	"github.com/bool64/stats"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"
)

// DefaultMaxRetries is the retry budget applied when ResilientConfig leaves it zero.
const DefaultMaxRetries = 2

// ResilientConfig is optional configuration for NewResilient.
type ResilientConfig[V any] struct {
	// Name is added to logs and stats.
	Name string

	// Upstream is a cache store. When nil, an in-memory store is created from
	// UpstreamConfig and owned by the Resilient instance (closed with it).
	Upstream Store[V]

	// UpstreamConfig is a configuration for in-memory store if Upstream is not provided.
	UpstreamConfig MemoryConfig

	// FailedFetchTTL is ttl of failed fetch cache, default 20s, -1 disables errors cache.
	FailedFetchTTL time.Duration

	// MaxRetries is the number of retries after a failed fetch attempt,
	// default 2, -1 disables retries.
	MaxRetries int

	// RetryBaseInterval is the first backoff delay, default 1s, doubled each attempt.
	RetryBaseInterval time.Duration

	// RetryMaxInterval caps the backoff delay, default 32s.
	RetryMaxInterval time.Duration

	// Retryable overrides failure classification, default DefaultRetryable.
	Retryable func(error) bool

	// Logger collects messages with context.
	Logger ctxd.Logger

	// Stats tracks stats.
	Stats stats.Tracker
}

// Resilient memoizes results of arbitrary fetch functions with bounded
// staleness, bounded capacity and collapsed concurrent duplicate work.
//
// Please use NewResilient to create instance.
type Resilient[V any] struct {
	// Errors caches errors of failed fetches.
	Errors *Memory[error]

	upstream    Store[V]
	ownUpstream bool
	flights     singleflight.Group
	generation  atomic.Uint64
	retryable   func(error) bool
	config      ResilientConfig[V]
	log         ctxd.Logger
	stat        stats.Tracker
}

// NewResilient creates a Resilient cache instance.
//
// Fetch is locked per key, concurrent callers of the same key join the
// in-flight fetch and observe its outcome. Failed fetches are cached with
// short TTL to protect an unhealthy upstream from a request flood.
func NewResilient[V any](config ResilientConfig[V]) *Resilient[V] {
	if config.FailedFetchTTL == 0 {
		config.FailedFetchTTL = 20 * time.Second
	}

	if config.MaxRetries == 0 {
		config.MaxRetries = DefaultMaxRetries
	}

	if config.RetryBaseInterval == 0 {
		config.RetryBaseInterval = time.Second
	}

	if config.RetryMaxInterval == 0 {
		config.RetryMaxInterval = 32 * time.Second
	}

	r := &Resilient[V]{}
	r.config = config

	r.log = config.Logger
	if r.log == nil {
		r.log = ctxd.NoOpLogger{}
	}

	r.stat = config.Stats
	if r.stat == nil {
		r.stat = stats.NoOp{}
	}

	r.retryable = config.Retryable
	if r.retryable == nil {
		r.retryable = DefaultRetryable
	}

	r.upstream = config.Upstream

	if r.upstream == nil {
		config.UpstreamConfig.Name = config.Name
		config.UpstreamConfig.Logger = config.Logger
		config.UpstreamConfig.Stats = config.Stats
		r.upstream = NewMemory[V](config.UpstreamConfig)
		r.ownUpstream = true
	}

	if config.FailedFetchTTL > -1 {
		r.Errors = NewMemory[error](MemoryConfig{
			Name:       "err_" + config.Name,
			Logger:     config.Logger,
			Stats:      config.Stats,
			TimeToLive: config.FailedFetchTTL,

			// Short cleanup interval to avoid storing potentially heavy errors for long.
			DeleteExpiredJobInterval: time.Minute,
		})
	}

	return r
}

// Get returns value from cache or from fetch function.
//
// Expired and missing entries trigger a fetch, concurrent callers of the same
// key share a single fetch invocation and its outcome. The fetch runs on a
// detached context, abandoning callers do not cancel it.
func (r *Resilient[V]) Get(ctx context.Context, key string, fetch FetchFunc[V]) (V, error) {
	var zero V

	if v, err := r.upstream.Read(ctx, key); err == nil {
		return v, nil
	}

	generation := r.generation.Load()

	v, err, _ := r.flights.Do(key, func() (interface{}, error) {
		// Re-check in the flight, a previous flight may have stored the value
		// between the initial read and this one.
		if v, err := r.upstream.Read(ctx, key); err == nil {
			return v, nil
		}

		if err := r.recentlyFailed(ctx, key); err != nil {
			return nil, err
		}

		return r.build(detachedContext{ctx: ctx}, key, generation, fetch)
	})
	if err != nil {
		return zero, err
	}

	return v.(V), nil
}

// Invalidate removes the entry for key immediately regardless of ttl, absent key is a no-op.
func (r *Resilient[V]) Invalidate(ctx context.Context, key string) {
	r.flights.Forget(key)

	if err := r.upstream.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
		r.log.Warn(ctx, "failed to invalidate cache entry",
			"error", err,
			"name", r.config.Name,
			"key", key)
	}

	if r.Errors != nil {
		_ = r.Errors.Delete(ctx, key)
	}
}

// Clear removes all entries.
//
// Fetches already in flight are not cancelled, but their eventual caching is skipped.
func (r *Resilient[V]) Clear(ctx context.Context) {
	r.generation.Add(1)
	r.upstream.RemoveAll()

	if r.Errors != nil {
		r.Errors.RemoveAll()
	}

	r.log.Debug(ctx, "cache cleared", "name", r.config.Name)
}

// ExpireAll marks all entries as expired without removing them.
func (r *Resilient[V]) ExpireAll(ctx context.Context) {
	r.upstream.ExpireAll()
	r.log.Debug(ctx, "cache expired", "name", r.config.Name)
}

// Stats returns an observability snapshot of the upstream store.
func (r *Resilient[V]) Stats() Snapshot {
	if s, ok := r.upstream.(interface{ Stats() Snapshot }); ok {
		return s.Stats()
	}

	return Snapshot{Items: r.upstream.Len()}
}

// Close releases owned resources.
//
// An Upstream provided by the caller is left untouched, its lifecycle belongs
// to the caller.
func (r *Resilient[V]) Close() {
	if r.ownUpstream {
		r.upstream.Close()
	}

	if r.Errors != nil {
		r.Errors.Close()
	}
}

func (r *Resilient[V]) build(ctx context.Context, key string, generation uint64, fetch FetchFunc[V]) (interface{}, error) {
	r.log.Debug(ctx, "building cache value", "name", r.config.Name, "key", key)

	defer func() {
		r.stat.Add(ctx, MetricBuild, 1, "name", r.config.Name)
	}()

	v, err := r.fetchWithRetry(ctx, key, fetch)
	if err != nil {
		r.stat.Add(ctx, MetricFailed, 1, "name", r.config.Name)

		if r.Errors != nil && r.generation.Load() == generation {
			if writeErr := r.Errors.Write(ctx, key, err); writeErr != nil {
				r.log.Error(ctx, "failed to cache fetch failure",
					"error", writeErr,
					"fetchErr", err,
					"name", r.config.Name,
					"key", key)
			}
		}

		return nil, err
	}

	if r.generation.Load() != generation {
		// Cache was cleared while the fetch was running, skip memoization.
		return v, nil
	}

	if writeErr := r.upstream.Write(ctx, key, v); writeErr != nil {
		// A successful fetch is never failed by cache bookkeeping,
		// the value is served uncached.
		r.log.Warn(ctx, "failed to cache fetched value",
			"error", writeErr,
			"name", r.config.Name,
			"key", key)
	}

	return v, nil
}

func (r *Resilient[V]) fetchWithRetry(ctx context.Context, key string, fetch FetchFunc[V]) (V, error) {
	budget := r.config.MaxRetries
	if b, ok := RetryBudget(ctx); ok {
		budget = b
	}

	if budget < 0 {
		budget = 0
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.config.RetryBaseInterval
	bo.MaxInterval = r.config.RetryMaxInterval
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0

	attempt := 0

	var v V

	op := func() error {
		attempt++

		var err error

		v, err = fetch(ctx)
		if err == nil {
			return nil
		}

		if !r.retryable(err) {
			return backoff.Permanent(err)
		}

		if attempt <= budget {
			r.stat.Add(ctx, MetricRetry, 1, "name", r.config.Name)
			r.log.Warn(ctx, "retrying failed fetch",
				"error", err,
				"name", r.config.Name,
				"key", key,
				"attempt", attempt)
		}

		return err
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(budget)), ctx))

	return v, err
}

func (r *Resilient[V]) recentlyFailed(ctx context.Context, key string) error {
	if r.Errors == nil {
		return nil
	}

	if errVal, err := r.Errors.Read(ctx, key); err == nil {
		return errVal
	}

	return nil
}
