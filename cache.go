package cache

import (
	"context"
	"time"
)

// DefaultTTL indicates default (instance level) value for entry expiration time.
const DefaultTTL = time.Duration(0)

// SkipWriteTTL is a ttl value to indicate that cache must not be stored.
const SkipWriteTTL = time.Duration(-1)

// FetchFunc computes a fresh value for a cache key.
//
// It must be idempotent and safe to invoke again after a failure.
type FetchFunc[V any] func(ctx context.Context) (V, error)

// Reader reads from cache.
type Reader[V any] interface {
	// Read returns cached value or an error.
	//
	// Missing entry is reported with ErrNotFound, expired entry with
	// ErrExpired. The expired value remains available through Stale.
	Read(ctx context.Context, key string) (V, error)
}

// Writer writes to cache.
type Writer[V any] interface {
	// Write stores value in cache with a given key.
	Write(ctx context.Context, key string, value V) error
}

// ReadWriter reads from and writes to cache.
type ReadWriter[V any] interface {
	Reader[V]
	Writer[V]
}

// Store is a cache backend with full lifecycle control.
type Store[V any] interface {
	ReadWriter[V]

	// Delete removes the entry regardless of remaining ttl,
	// ErrNotFound is returned for an absent key.
	Delete(ctx context.Context, key string) error

	// ExpireAll marks all entries as expired without removing them.
	ExpireAll()

	// RemoveAll deletes all entries.
	RemoveAll()

	// Len returns the number of resident entries, expired included.
	Len() int

	// Close stops background jobs and deactivates the store.
	Close()
}

// Entry is a cache entry with expiration time.
type Entry[V any] interface {
	Value() V
	ExpireAt() time.Time
}

// Walker calls function for every entry in cache and fails on first error returned by that function.
//
// Count of processed entries is returned.
type Walker[V any] interface {
	Walk(func(key string, e Entry[V]) error) (int, error)
}
