package cache

import (
	"context"
)

// NoOp is a Store stub that disables caching without changing call sites.
type NoOp[V any] struct{}

var _ Store[int] = NoOp[int]{}

// Read does not find anything.
func (NoOp[V]) Read(ctx context.Context, key string) (V, error) {
	var zero V

	return zero, ErrNotFound
}

// Write discards value.
func (NoOp[V]) Write(ctx context.Context, key string, v V) error {
	return nil
}

// Delete does not find anything.
func (NoOp[V]) Delete(ctx context.Context, key string) error {
	return ErrNotFound
}

// ExpireAll does nothing.
func (NoOp[V]) ExpireAll() {}

// RemoveAll does nothing.
func (NoOp[V]) RemoveAll() {}

// Len returns 0.
func (NoOp[V]) Len() int { return 0 }

// Close does nothing.
func (NoOp[V]) Close() {}
