// Package cache provides a resilient, TTL-bounded cache for slow or flaky
// upstream sources.
//
// Features:
//
//   - Get-or-compute contract around arbitrary fetch functions.
//   - Concurrent fetches of the same key are collapsed into a single flight.
//   - Bounded retry with exponential backoff and transient/rejected error taxonomy.
//   - Fetch errors are cached with low TTL to avoid flooding unhealthy upstream.
//   - Entry count and approximate memory ceilings with hit-count driven eviction.
//   - Background janitor with lifecycle tied to Close.
//   - Fallback chains combine several sources behind a single fetch function.
//   - Allows logging, stats collection.
//   - Propagates context to allow better control of backend and application components.
//   - Allows mass expiration and removal (drop cache).
//   - Expiration jitter to avoid massive synchronized expiration.
package cache
