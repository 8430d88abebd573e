package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grandgold-errcache/internal/model"
)

// newIdleRecorder returns a recorder whose ticker effectively never fires.
func newIdleRecorder(t *testing.T, repo *memoryDecisionRepo) *Recorder {
	t.Helper()
	r := NewRecorder(NewDecisionFlushFunc(repo), time.Hour)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRecorderFlushBatch(t *testing.T) {
	repo := &memoryDecisionRepo{}
	r := newIdleRecorder(t, repo)
	ctx := context.Background()

	for i := 0; i < MaxBatchSize+5; i++ {
		r.Add(model.Decision{ID: fmt.Sprint(i)})
	}
	require.Equal(t, MaxBatchSize+5, r.Count())

	n, err := r.FlushBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, MaxBatchSize, n)
	assert.Equal(t, 5, r.Count())

	n, err = r.FlushBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = r.FlushBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, MaxBatchSize+5, repo.len())
}

func TestRecorderRequeuesOnFailure(t *testing.T) {
	repo := &memoryDecisionRepo{failNext: 1}
	r := newIdleRecorder(t, repo)
	ctx := context.Background()

	r.Add(model.Decision{ID: "a"})
	r.Add(model.Decision{ID: "b"})

	_, err := r.FlushBatch(ctx)
	require.ErrorIs(t, err, errRepoDown)
	assert.Equal(t, 2, r.Count())

	r.Add(model.Decision{ID: "c"})
	n, err := r.FlushBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	ids := []string{}
	for _, d := range repo.decisions {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids, "order is preserved after a failed flush")
}

func TestRecorderDropsOldestWhenFull(t *testing.T) {
	repo := &memoryDecisionRepo{}
	r := newIdleRecorder(t, repo)

	for i := 0; i < MaxPending+3; i++ {
		r.Add(model.Decision{ID: fmt.Sprint(i)})
	}
	assert.Equal(t, MaxPending, r.Count())

	r.mu.Lock()
	first := r.pending[0].ID
	r.mu.Unlock()
	assert.Equal(t, "3", first)
}

func TestRecorderCloseDrains(t *testing.T) {
	repo := &memoryDecisionRepo{}
	r := NewRecorder(NewDecisionFlushFunc(repo), time.Hour)

	for i := 0; i < 2*MaxBatchSize+1; i++ {
		r.Add(model.Decision{ID: fmt.Sprint(i)})
	}

	require.NoError(t, r.Close())
	require.NoError(t, r.Close(), "close is idempotent")
	assert.Equal(t, 2*MaxBatchSize+1, repo.len())
	assert.Zero(t, r.Count())
}

func TestRecorderBackgroundFlush(t *testing.T) {
	repo := &memoryDecisionRepo{}
	r := NewRecorder(NewDecisionFlushFunc(repo), 10*time.Millisecond)
	defer r.Close()

	r.Add(model.Decision{ID: "a"})

	assert.Eventually(t, func() bool { return repo.len() == 1 }, time.Second, 5*time.Millisecond)
}

func TestRecorderTickDrainsEveryBatch(t *testing.T) {
	repo := &memoryDecisionRepo{}
	r := NewRecorder(NewDecisionFlushFunc(repo), 100*time.Millisecond)
	defer r.Close()

	total := 5*MaxBatchSize + 7
	for i := 0; i < total; i++ {
		r.Add(model.Decision{ID: fmt.Sprint(i)})
	}

	// The first tick lands at 100ms and the second at 200ms; a single tick
	// has to write all six batches.
	assert.Eventually(t, func() bool { return repo.len() == total }, 180*time.Millisecond, 2*time.Millisecond)
	assert.Zero(t, r.Count())
}

func TestRecorderDrainStopsOnError(t *testing.T) {
	repo := &memoryDecisionRepo{failNext: 1}
	r := newIdleRecorder(t, repo)

	for i := 0; i < 2*MaxBatchSize; i++ {
		r.Add(model.Decision{ID: fmt.Sprint(i)})
	}

	require.ErrorIs(t, r.drain(context.Background()), errRepoDown)
	assert.Equal(t, 2*MaxBatchSize, r.Count())

	require.NoError(t, r.drain(context.Background()))
	assert.Zero(t, r.Count())
	assert.Equal(t, 2*MaxBatchSize, repo.len())
}

func TestRecorderDropsUndeliverableDecision(t *testing.T) {
	repo := &memoryDecisionRepo{reject: map[string]bool{"bad": true}}
	r := newIdleRecorder(t, repo)
	ctx := context.Background()

	r.Add(model.Decision{ID: "a"})
	r.Add(model.Decision{ID: "bad"})
	r.Add(model.Decision{ID: "b"})

	for i := 1; i < MaxFlushAttempts; i++ {
		_, err := r.FlushBatch(ctx)
		require.ErrorIs(t, err, errRowRejected, "attempt %d", i)
		assert.Equal(t, 3, r.Count(), "attempt %d keeps the batch", i)
	}

	n, err := r.FlushBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, r.Count())
	assert.Equal(t, []string{"a", "b"}, repo.ids())

	// Later decisions are no longer held back.
	r.Add(model.Decision{ID: "c"})
	n, err = r.FlushBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"a", "b", "c"}, repo.ids())
}

func TestRecorderFailureCountResetsOnSuccess(t *testing.T) {
	repo := &memoryDecisionRepo{failNext: MaxFlushAttempts - 1}
	r := newIdleRecorder(t, repo)
	ctx := context.Background()

	r.Add(model.Decision{ID: "a"})
	for i := 1; i < MaxFlushAttempts; i++ {
		_, err := r.FlushBatch(ctx)
		require.ErrorIs(t, err, errRepoDown)
	}

	n, err := r.FlushBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	repo.mu.Lock()
	repo.failNext = 1
	repo.mu.Unlock()

	r.Add(model.Decision{ID: "b"})
	_, err = r.FlushBatch(ctx)
	require.ErrorIs(t, err, errRepoDown, "a fresh failure does not inherit earlier attempts")
	assert.Equal(t, 1, r.Count())
}
