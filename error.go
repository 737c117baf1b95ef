package cache

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// SentinelError is an error.
type SentinelError string

const (
	// ErrNotFound indicates missing cache entry.
	ErrNotFound = SentinelError("missing cache entry")

	// ErrExpired indicates expired cache entry.
	//
	// The stale value is attached to the error and can be recovered with Stale.
	ErrExpired = SentinelError("expired cache entry")

	// ErrValueTooLarge indicates an entry that alone exceeds the byte ceiling,
	// such entries are not memoized.
	ErrValueTooLarge = SentinelError("value exceeds cache byte ceiling")

	// ErrClosed indicates cache was closed and deactivated.
	ErrClosed = SentinelError("cache is closed")

	// ErrNoSources indicates an empty fallback chain.
	ErrNoSources = SentinelError("no fetch sources")

	// ErrNothingToInvalidate indicates no caches were added to Invalidator.
	ErrNothingToInvalidate = SentinelError("nothing to invalidate")

	// ErrAlreadyInvalidated indicates recent invalidation.
	ErrAlreadyInvalidated = SentinelError("already invalidated")
)

// Error implements error.
func (e SentinelError) Error() string {
	return string(e)
}

// expiredError carries the stale value of an expired entry.
type expiredError[V any] struct {
	val V
	exp time.Time
}

func (e expiredError[V]) Error() string {
	return ErrExpired.Error()
}

func (e expiredError[V]) Is(err error) bool {
	return err == ErrExpired
}

func (e expiredError[V]) Value() V {
	return e.val
}

func (e expiredError[V]) ExpiredAt() time.Time {
	return e.exp
}

// Stale recovers the expired value attached to an ErrExpired error.
func Stale[V any](err error) (V, bool) {
	var ee expiredError[V]
	if errors.As(err, &ee) {
		return ee.val, true
	}

	var zero V

	return zero, false
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

type rejectedError struct {
	err error
}

func (e *rejectedError) Error() string { return e.err.Error() }
func (e *rejectedError) Unwrap() error { return e.err }

// Transient marks a fetch failure as retryable, e.g. a network timeout or a 5xx response.
func Transient(err error) error {
	if err == nil {
		return nil
	}

	return &transientError{err: err}
}

// Rejected marks a fetch failure as terminal, e.g. a malformed request or a 4xx response.
//
// Rejected errors are surfaced immediately without consuming the retry budget.
func Rejected(err error) error {
	if err == nil {
		return nil
	}

	return &rejectedError{err: err}
}

// HTTPStatus classifies err with the taxonomy implied by an HTTP response status.
//
// Server-side and throttling statuses are transient, other client errors are rejections.
func HTTPStatus(code int, err error) error {
	switch {
	case code >= http.StatusInternalServerError,
		code == http.StatusTooManyRequests,
		code == http.StatusRequestTimeout:
		return Transient(err)
	case code >= http.StatusBadRequest:
		return Rejected(err)
	}

	return err
}

// DefaultRetryable reports whether a fetch failure is worth retrying.
//
// Explicit rejections and context errors fail fast, everything else is
// presumed to be an upstream hiccup.
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var rejected *rejectedError
	if errors.As(err, &rejected) {
		return false
	}

	// Transient wrappers, net errors and unclassified failures alike.
	return true
}
