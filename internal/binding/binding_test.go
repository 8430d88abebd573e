package binding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grandgold-errcache/internal/errorcache"
)

func newTestCache(ttl time.Duration) (*errorcache.Cache, *clock.Mock) {
	clk := clock.NewMock()
	clk.Add(time.Hour)
	return errorcache.New(errorcache.NewMemoryStore(),
		errorcache.WithClock(clk),
		errorcache.WithTTL(ttl),
	), clk
}

var errNetwork = errors.New("Network error")

func TestObserveFailureShowsOnce(t *testing.T) {
	cache, clk := newTestCache(5 * time.Minute)
	ctx := context.Background()
	b := New(cache, "GetOrders", map[string]any{"first": 10})
	defer b.Dispose()

	b.Observe(ctx, errNetwork)
	assert.True(t, b.Visible())
	assert.Equal(t, errNetwork, b.Err())
	assert.Equal(t, errorcache.ReasonFirstSeen, b.State().Reason)

	clk.Add(time.Second)
	b.Observe(ctx, errNetwork)
	assert.False(t, b.Visible())
	assert.Nil(t, b.Err())
	assert.Equal(t, errorcache.ReasonDuplicate, b.State().Reason)
}

func TestObserveSuccessClearsEntry(t *testing.T) {
	cache, _ := newTestCache(5 * time.Minute)
	ctx := context.Background()
	b := New(cache, "GetOrders", nil)
	defer b.Dispose()

	b.Observe(ctx, errNetwork)
	require.True(t, b.Visible())

	b.Observe(ctx, nil)
	assert.False(t, b.Visible())
	_, err := cache.Lookup(ctx, b.Key())
	assert.ErrorIs(t, err, errorcache.ErrEntryNotFound)

	b.Observe(ctx, errNetwork)
	assert.True(t, b.Visible(), "failure after success is first seen again")
}

func TestDismissHoldsUntilSuccess(t *testing.T) {
	cache, clk := newTestCache(5 * time.Minute)
	ctx := context.Background()
	b := New(cache, "GetOrders", nil)
	defer b.Dispose()

	b.Observe(ctx, errNetwork)
	require.True(t, b.Visible())

	b.Dismiss(ctx)
	assert.False(t, b.Visible())

	b.Observe(ctx, errors.New("Internal server error"))
	assert.False(t, b.Visible(), "a different message stays dismissed")

	clk.Add(time.Hour)
	b.Observe(ctx, errNetwork)
	assert.False(t, b.Visible())

	b.Observe(ctx, nil)
	b.Observe(ctx, errNetwork)
	assert.True(t, b.Visible())
}

func TestSetOperationResetsState(t *testing.T) {
	cache, _ := newTestCache(5 * time.Minute)
	ctx := context.Background()
	b := New(cache, "GetOrders", map[string]any{"page": 1})
	defer b.Dispose()

	b.Observe(ctx, errNetwork)
	require.True(t, b.Visible())
	b.Dismiss(ctx)
	firstKey := b.Key()

	b.SetOperation(ctx, "GetOrders", map[string]any{"page": 2})
	assert.NotEqual(t, firstKey, b.Key())
	assert.False(t, b.Visible())

	b.Observe(ctx, errNetwork)
	assert.True(t, b.Visible(), "the new key has its own entry")

	// The old key is still dismissed in the shared store.
	assert.False(t, cache.ShouldShow(ctx, firstKey, "Network error"))
}

func TestSetOperationSameKeyKeepsState(t *testing.T) {
	cache, _ := newTestCache(5 * time.Minute)
	ctx := context.Background()
	b := New(cache, "GetOrders", map[string]any{"a": 1, "b": 2})
	defer b.Dispose()

	b.Observe(ctx, errNetwork)
	require.True(t, b.Visible())

	b.SetOperation(ctx, "GetOrders", map[string]any{"b": 2, "a": 1})
	assert.True(t, b.Visible())
}

func TestDisabledBindingStillUpdatesStore(t *testing.T) {
	cache, _ := newTestCache(5 * time.Minute)
	ctx := context.Background()
	b := New(cache, "GetOrders", nil, WithEnabled(false))
	defer b.Dispose()

	b.Observe(ctx, errNetwork)
	assert.False(t, b.Visible())

	entry, err := cache.Lookup(ctx, b.Key())
	require.NoError(t, err)
	assert.Equal(t, "Network error", entry.ErrorMessage)
}

func TestUnserializableVariablesFailClosed(t *testing.T) {
	cache, _ := newTestCache(5 * time.Minute)
	ctx := context.Background()
	b := New(cache, "GetOrders", map[string]any{"ch": make(chan int)})
	defer b.Dispose()

	for i := 0; i < 3; i++ {
		b.Observe(ctx, errNetwork)
		assert.True(t, b.Visible())
		assert.Equal(t, errorcache.ReasonKeyError, b.State().Reason)
	}

	n, err := cache.Store().Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestResurfaceTimerShowsPersistentError(t *testing.T) {
	cache, clk := newTestCache(5 * time.Minute)
	ctx := context.Background()

	var states []State
	b := New(cache, "GetOrders", nil, WithOnChange(func(s State) {
		states = append(states, s)
	}))
	defer b.Dispose()

	b.Observe(ctx, errNetwork)
	clk.Add(time.Second)
	b.Observe(ctx, errNetwork)
	require.False(t, b.Visible())

	clk.Add(5*time.Minute - 2*time.Second)
	assert.False(t, b.Visible())

	clk.Add(time.Second)
	assert.True(t, b.Visible())
	assert.Equal(t, errorcache.ReasonTTLExpired, b.State().Reason)

	require.Len(t, states, 3)
	assert.True(t, states[0].Visible)
	assert.False(t, states[1].Visible)
	assert.True(t, states[2].Visible)
}

func TestSuccessStopsResurfaceTimer(t *testing.T) {
	cache, clk := newTestCache(time.Minute)
	ctx := context.Background()
	b := New(cache, "GetOrders", nil)
	defer b.Dispose()

	b.Observe(ctx, errNetwork)
	b.Observe(ctx, errNetwork)
	b.Observe(ctx, nil)

	clk.Add(time.Hour)
	assert.False(t, b.Visible())
}

func TestDisposeStopsTimerAndIgnoresCalls(t *testing.T) {
	cache, clk := newTestCache(time.Minute)
	ctx := context.Background()

	calls := 0
	b := New(cache, "GetOrders", nil, WithOnChange(func(State) { calls++ }))

	b.Observe(ctx, errNetwork)
	b.Observe(ctx, errNetwork)
	require.Equal(t, 2, calls)

	b.Dispose()
	clk.Add(time.Hour)
	b.Observe(ctx, errors.New("other"))
	b.Dismiss(ctx)
	b.SetOperation(ctx, "GetCustomers", nil)

	assert.Equal(t, 2, calls)
	assert.False(t, b.Visible())
}
