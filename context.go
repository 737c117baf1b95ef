package cache

import (
	"context"
	"time"
)

type (
	skipReadCtxKey struct{}
	ttlCtxKey      struct{}
	retryCtxKey    struct{}
)

// WithTTL returns context with an entry ttl override.
func WithTTL(ctx context.Context, ttl time.Duration) context.Context {
	return context.WithValue(ctx, ttlCtxKey{}, ttl)
}

// TTL returns ttl override or DefaultTTL.
func TTL(ctx context.Context) time.Duration {
	ttl, _ := ctx.Value(ttlCtxKey{}).(time.Duration)

	return ttl
}

// WithSkipRead returns context with cache read ignored.
//
// With such context cache.Reader should always return ErrNotFound discarding cached value.
func WithSkipRead(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipReadCtxKey{}, true)
}

// SkipRead returns true if cache read is ignored in context.
func SkipRead(ctx context.Context) bool {
	_, ok := ctx.Value(skipReadCtxKey{}).(bool)

	return ok
}

// WithRetryBudget returns context with a retry budget override for a single Get.
func WithRetryBudget(ctx context.Context, retries int) context.Context {
	return context.WithValue(ctx, retryCtxKey{}, retries)
}

// RetryBudget returns retry budget override if any.
func RetryBudget(ctx context.Context) (int, bool) {
	retries, ok := ctx.Value(retryCtxKey{}).(int)

	return retries, ok
}
