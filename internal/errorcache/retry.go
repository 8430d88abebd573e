package errorcache

import (
	"context"
	"math"
	"time"
)

// maxBackoff is the ceiling backoff saturates at instead of overflowing.
const maxBackoff = time.Duration(math.MaxInt64)

// nextAllowedRetryTime returns the earliest time the next retry for entry may
// run. ok is false once the retry budget is spent.
func (c *Cache) nextAllowedRetryTime(entry Entry) (time.Time, bool) {
	if entry.RetryCount >= c.maxRetries {
		return time.Time{}, false
	}
	return entry.LastRetryAt.Add(c.backoff(entry.RetryCount)), true
}

// backoff returns base * 2^retryCount, saturating at maxBackoff.
func (c *Cache) backoff(retryCount int) time.Duration {
	if retryCount <= 0 {
		return c.baseRetryDelay
	}
	if retryCount >= 63 || c.baseRetryDelay > maxBackoff>>uint(retryCount) {
		return maxBackoff
	}
	return c.baseRetryDelay << uint(retryCount)
}

// ShouldRetry reports whether a retry for key is due now. A key with no entry
// may always be attempted.
//
// A store failure allows the retry so fetching is never blocked by the cache.
func (c *Cache) ShouldRetry(ctx context.Context, key string) bool {
	entry, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.log.Warn("store read failed, allowing retry", "key", key, "error", err)
		return true
	}
	if !ok {
		return true
	}

	next, ok := c.nextAllowedRetryTime(entry)
	if !ok {
		return false
	}
	return !c.clock.Now().Before(next)
}

// RecordRetry records a retry attempt for key if one is due, and reports
// whether it was recorded. Keys without an entry have nothing to record.
func (c *Cache) RecordRetry(ctx context.Context, key string) bool {
	now := c.clock.Now()

	var recorded bool
	err := c.store.Update(ctx, key, func(cur Entry, ok bool) (Entry, UpdateAction) {
		recorded = false
		if !ok {
			return cur, Keep
		}

		next, ok := c.nextAllowedRetryTime(cur)
		if !ok || now.Before(next) {
			return cur, Keep
		}

		cur.RetryCount++
		cur.LastRetryAt = now
		recorded = true
		return cur, Put
	})
	if err != nil {
		c.log.Warn("store update failed, retry not recorded", "key", key, "error", err)
		return false
	}

	return recorded
}

// RetryDelay returns the backoff that applies to the next retry for key.
func (c *Cache) RetryDelay(ctx context.Context, key string) time.Duration {
	entry, ok, err := c.store.Get(ctx, key)
	if err != nil || !ok {
		return c.baseRetryDelay
	}
	return c.backoff(entry.RetryCount)
}
