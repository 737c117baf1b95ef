package cache

import (
	"context"
	"time"
)

// detachedContext exposes parent values, but suppresses parent cancellation.
//
// A flight shared by several callers must not be cancelled when the caller
// that started it goes away.
type detachedContext struct {
	ctx context.Context
}

func (dctx detachedContext) Deadline() (deadline time.Time, ok bool) {
	return time.Time{}, false
}

func (dctx detachedContext) Done() <-chan struct{} {
	return nil
}

func (dctx detachedContext) Err() error {
	return nil
}

func (dctx detachedContext) Value(key any) any {
	return dctx.ctx.Value(key)
}
