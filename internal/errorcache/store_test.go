package errorcache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract exercises behaviour every Store implementation must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	entry := Entry{
		FirstSeenAt:  now,
		ErrorMessage: "Network error",
		RetryCount:   2,
		LastRetryAt:  now.Add(3 * time.Second),
	}

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		_, ok, err := s.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("set overwrites", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "k", entry))

		updated := entry
		updated.Dismissed = true
		require.NoError(t, s.Set(ctx, "k", updated))

		got, ok, err := s.Get(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, got.FirstSeenAt.Equal(entry.FirstSeenAt))
		assert.True(t, got.LastRetryAt.Equal(entry.LastRetryAt))
		assert.Equal(t, entry.ErrorMessage, got.ErrorMessage)
		assert.Equal(t, entry.RetryCount, got.RetryCount)
		assert.True(t, got.Dismissed)

		n, err := s.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "k", entry))
		require.NoError(t, s.Delete(ctx, "k"))
		require.NoError(t, s.Delete(ctx, "k"), "deleting twice is a no-op")

		_, ok, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("update actions", func(t *testing.T) {
		s := newStore(t)

		require.NoError(t, s.Update(ctx, "k", func(cur Entry, ok bool) (Entry, UpdateAction) {
			assert.False(t, ok)
			return entry, Put
		}))
		_, ok, err := s.Get(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, s.Update(ctx, "k", func(cur Entry, ok bool) (Entry, UpdateAction) {
			assert.True(t, ok)
			assert.Equal(t, entry.ErrorMessage, cur.ErrorMessage)
			cur.ErrorMessage = "ignored"
			return cur, Keep
		}))
		got, _, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, entry.ErrorMessage, got.ErrorMessage)

		require.NoError(t, s.Update(ctx, "k", func(cur Entry, ok bool) (Entry, UpdateAction) {
			return cur, Remove
		}))
		_, ok, err = s.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("concurrent updates", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "k", Entry{}))

		const workers = 8
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.Update(ctx, "k", func(cur Entry, ok bool) (Entry, UpdateAction) {
					cur.RetryCount++
					return cur, Put
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, _, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, workers, got.RetryCount)
	})

	t.Run("clear", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "a", entry))
		require.NoError(t, s.Set(ctx, "b", entry))
		require.NoError(t, s.Clear(ctx))

		n, err := s.Len(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		_, ok, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, newStore(t).Ping(ctx))
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}
