package errorcache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/facebookgo/clock"
)

// Cache decides whether a failure should be surfaced to the user and paces
// retries for the same failure. All state lives in the Store, so a Cache is
// safe for concurrent use whenever its Store is.
type Cache struct {
	store          Store
	clock          clock.Clock
	log            *slog.Logger
	ttl            time.Duration
	maxRetries     int
	baseRetryDelay time.Duration
}

// New creates a Cache on top of store.
func New(store Store, opts ...Option) *Cache {
	c := &Cache{
		store:          store,
		clock:          clock.New(),
		log:            slog.Default(),
		ttl:            DefaultTTL,
		maxRetries:     DefaultMaxRetries,
		baseRetryDelay: DefaultBaseRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "ErrorCache")
	return c
}

// TTL returns the suppression window.
func (c *Cache) TTL() time.Duration { return c.ttl }

// MaxRetries returns the retry cap.
func (c *Cache) MaxRetries() int { return c.maxRetries }

// BaseRetryDelay returns the backoff base.
func (c *Cache) BaseRetryDelay() time.Duration { return c.baseRetryDelay }

// Clock returns the clock decisions are made against.
func (c *Cache) Clock() clock.Clock { return c.clock }

// Store returns the underlying store.
func (c *Cache) Store() Store { return c.store }

// ShouldShow reports whether an error with message should be displayed for key.
func (c *Cache) ShouldShow(ctx context.Context, key, message string) bool {
	return c.Evaluate(ctx, key, message).Show
}

// Evaluate applies the suppression rules for an incoming error and records
// the resulting state. Only decisions that show the error mutate the entry.
//
// A store failure never suppresses: the error is shown with ReasonStoreError.
func (c *Cache) Evaluate(ctx context.Context, key, message string) Decision {
	now := c.clock.Now()

	var d Decision
	err := c.store.Update(ctx, key, func(cur Entry, ok bool) (Entry, UpdateAction) {
		switch {
		case !ok:
			d = Decision{Show: true, Reason: ReasonFirstSeen, Entry: newEntry(message, now)}
			return d.Entry, Put

		case cur.Dismissed:
			// Dismissal holds even for a different message until success.
			d = Decision{Reason: ReasonDismissed, Entry: cur}
			return cur, Keep

		case cur.ErrorMessage != message:
			d = Decision{Show: true, Reason: ReasonMessageChanged, Entry: newEntry(message, now)}
			return d.Entry, Put

		case now.Sub(cur.FirstSeenAt) >= c.ttl:
			next := cur
			next.FirstSeenAt = now
			next.RetryCount = 0
			d = Decision{Show: true, Reason: ReasonTTLExpired, Entry: next}
			return next, Put

		default:
			d = Decision{Reason: ReasonDuplicate, Entry: cur}
			return cur, Keep
		}
	})
	if err != nil {
		c.log.Warn("store update failed, showing error", "key", key, "error", err)
		return Decision{Show: true, Reason: ReasonStoreError}
	}

	return d
}

// Dismiss marks key as dismissed by the user. The entry stays suppressed
// until Clear is called for it. A key with no entry gets a dismissed one.
func (c *Cache) Dismiss(ctx context.Context, key string) error {
	now := c.clock.Now()

	err := c.store.Update(ctx, key, func(cur Entry, ok bool) (Entry, UpdateAction) {
		if !ok {
			cur = newEntry("", now)
		}
		cur.Dismissed = true
		return cur, Put
	})
	if err != nil {
		return fmt.Errorf("failed to dismiss %q: %w", key, err)
	}
	return nil
}

// Clear removes the entry for key. Call it when the operation succeeds.
func (c *Cache) Clear(ctx context.Context, key string) error {
	if err := c.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to clear %q: %w", key, err)
	}
	return nil
}

// ClearAll empties the store.
func (c *Cache) ClearAll(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear error cache: %w", err)
	}
	return nil
}

// Lookup returns the entry for key, or ErrEntryNotFound.
func (c *Cache) Lookup(ctx context.Context, key string) (Entry, error) {
	entry, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to look up %q: %w", key, err)
	}
	if !ok {
		return Entry{}, ErrEntryNotFound
	}
	return entry, nil
}
