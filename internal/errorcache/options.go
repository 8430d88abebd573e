package errorcache

import (
	"log/slog"
	"time"

	"github.com/facebookgo/clock"
)

// Defaults applied when no option overrides them.
const (
	DefaultTTL            = 5 * time.Minute
	DefaultMaxRetries     = 3
	DefaultBaseRetryDelay = time.Second
)

// MaxRetriesLimit is the largest retry cap configuration accepts. Backoff
// saturates rather than overflows beyond it, but the waits are already years.
const MaxRetriesLimit = 30

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets how long an unchanged, already shown error stays suppressed.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithMaxRetries caps the number of retries tracked per key.
func WithMaxRetries(n int) Option {
	return func(c *Cache) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithBaseRetryDelay sets the base of the exponential backoff.
func WithBaseRetryDelay(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.baseRetryDelay = d
		}
	}
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clk clock.Clock) Option {
	return func(c *Cache) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithLogger sets the logger used for store failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.log = logger
		}
	}
}
