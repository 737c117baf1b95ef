package cache

import (
	"fmt"
	"sync"
	"time"
)

// Invalidator is a registry of cache expiration triggers.
type Invalidator struct {
	mu sync.Mutex

	// SkipInterval defines minimal duration between two cache invalidations (flood protection).
	SkipInterval time.Duration

	callbacks []func()
	lastRun   time.Time
}

// Register adds a callback to call on invalidation, e.g. ExpireAll of a cache instance.
func (i *Invalidator) Register(cb func()) {
	i.mu.Lock()
	i.callbacks = append(i.callbacks, cb)
	i.mu.Unlock()
}

// Invalidate triggers cache expiration.
func (i *Invalidator) Invalidate() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if len(i.callbacks) == 0 {
		return ErrNothingToInvalidate
	}

	if i.SkipInterval == 0 {
		i.SkipInterval = 15 * time.Second
	}

	if time.Since(i.lastRun) < i.SkipInterval {
		return fmt.Errorf("%w at %s, %s did not pass",
			ErrAlreadyInvalidated, i.lastRun.String(), i.SkipInterval.String())
	}

	i.lastRun = time.Now()
	for _, cb := range i.callbacks {
		cb()
	}

	return nil
}
