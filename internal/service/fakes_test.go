package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"grandgold-errcache/internal/model"
)

// memoryDecisionRepo is an in-memory DecisionRepository for tests.
type memoryDecisionRepo struct {
	mu        sync.Mutex
	decisions []model.Decision
	failNext  int
	cutoffs   []time.Time
	// reject fails any batch containing one of these IDs, like a row the
	// database refuses inside a transaction.
	reject    map[string]bool
}

var (
	errRepoDown    = errors.New("database is down")
	errRowRejected = errors.New("Error 1406: Data too long for column 'cache_key'")
)

func (r *memoryDecisionRepo) BatchInsert(ctx context.Context, decisions []model.Decision) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failNext > 0 {
		r.failNext--
		return errRepoDown
	}
	for _, d := range decisions {
		if r.reject[d.ID] {
			return errRowRejected
		}
	}
	r.decisions = append(r.decisions, decisions...)
	return nil
}

func (r *memoryDecisionRepo) ListRecent(ctx context.Context, key string, limit int) ([]model.Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []model.Decision
	for _, d := range r.decisions {
		if key == "" || d.Key == key {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RecordedAt.After(out[j].RecordedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryDecisionRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cutoffs = append(r.cutoffs, cutoff)
	kept := r.decisions[:0]
	var deleted int64
	for _, d := range r.decisions {
		if d.RecordedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, d)
	}
	r.decisions = kept
	return deleted, nil
}

func (r *memoryDecisionRepo) GetStats(ctx context.Context) (map[string]interface{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return map[string]interface{}{"total_decisions": int64(len(r.decisions))}, nil
}

func (r *memoryDecisionRepo) Close() error { return nil }

func (r *memoryDecisionRepo) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.decisions)
}

func (r *memoryDecisionRepo) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.decisions))
	for _, d := range r.decisions {
		ids = append(ids, d.ID)
	}
	return ids
}
