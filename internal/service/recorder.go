package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"grandgold-errcache/internal/metrics"
	"grandgold-errcache/internal/model"
)

// Recorder configuration
const (
	MaxBatchSize         = 100
	MaxPending           = 10000
	MaxFlushAttempts     = 5
	FlushTimeout         = 30 * time.Second
	DefaultFlushInterval = 10 * time.Second
)

// FlushFunc is called to persist buffered decisions.
type FlushFunc func(ctx context.Context, decisions []model.Decision) error

// Recorder buffers decisions in memory and writes them behind in batches,
// keeping the decision path free of database latency.
type Recorder struct {
	flushFunc   FlushFunc
	flushTicker *time.Ticker
	stopFlush   chan struct{}
	done        chan struct{}
	stopOnce    sync.Once
	log         *slog.Logger

	mu      sync.Mutex
	pending []model.Decision

	// failures counts consecutive failed flushes of the batch at the head
	// of pending.
	failures int
}

// NewRecorder starts a recorder that flushes every interval.
func NewRecorder(flushFunc FlushFunc, interval time.Duration) *Recorder {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}

	r := &Recorder{
		flushFunc:   flushFunc,
		flushTicker: time.NewTicker(interval),
		stopFlush:   make(chan struct{}),
		done:        make(chan struct{}),
		log:         slog.With("component", "Recorder"),
	}

	go r.backgroundFlush()

	r.log.Info("started", "flush_interval", interval, "batch", MaxBatchSize)
	return r
}

// Add buffers a decision. It never blocks on the database.
func (r *Recorder) Add(d model.Decision) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pending = append(r.pending, d)
	r.trimLocked()
}

// Count returns the number of pending decisions.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// FlushBatch writes up to MaxBatchSize decisions. On failure the batch goes
// back to the front of the buffer. After MaxFlushAttempts consecutive
// failures the batch is written one decision at a time and the decisions
// that still fail are dropped.
func (r *Recorder) FlushBatch(ctx context.Context) (int, error) {
	r.mu.Lock()
	n := len(r.pending)
	if n > MaxBatchSize {
		n = MaxBatchSize
	}
	batch := make([]model.Decision, n)
	copy(batch, r.pending[:n])
	r.pending = r.pending[n:]
	r.mu.Unlock()

	if len(batch) == 0 {
		return 0, nil
	}

	err := r.flushFunc(ctx, batch)
	if err == nil {
		r.mu.Lock()
		r.failures = 0
		r.mu.Unlock()

		metrics.DecisionLogFlushed.Add(float64(len(batch)))
		r.log.Debug("flushed decisions", "count", len(batch))
		return len(batch), nil
	}

	r.mu.Lock()
	r.failures++
	giveUp := r.failures >= MaxFlushAttempts
	if giveUp {
		r.failures = 0
	} else {
		r.pending = append(batch, r.pending...)
		r.trimLocked()
	}
	r.mu.Unlock()

	if !giveUp {
		return 0, err
	}
	return r.flushEach(ctx, batch, err), nil
}

// flushEach writes decisions individually so one bad row cannot hold back
// the rest of its batch. It returns the number written.
func (r *Recorder) flushEach(ctx context.Context, batch []model.Decision, batchErr error) int {
	written := 0
	var lastErr error
	for _, d := range batch {
		if err := r.flushFunc(ctx, []model.Decision{d}); err != nil {
			lastErr = err
			continue
		}
		written++
	}

	metrics.DecisionLogFlushed.Add(float64(written))
	if dropped := len(batch) - written; dropped > 0 {
		metrics.DecisionLogDropped.Add(float64(dropped))
		r.log.Error("dropped undeliverable decisions",
			"dropped", dropped, "written", written, "attempts", MaxFlushAttempts,
			"batch_error", batchErr, "error", lastErr)
	}
	return written
}

// drain flushes batches until the buffer is empty or a flush fails.
func (r *Recorder) drain(ctx context.Context) error {
	for {
		flushed, err := r.FlushBatch(ctx)
		if err != nil {
			return err
		}
		if flushed == 0 && r.Count() == 0 {
			return nil
		}
	}
}

// trimLocked drops the oldest decisions once the buffer exceeds MaxPending.
func (r *Recorder) trimLocked() {
	if over := len(r.pending) - MaxPending; over > 0 {
		r.pending = r.pending[over:]
		metrics.DecisionLogDropped.Add(float64(over))
		r.log.Warn("decision buffer full, dropped oldest", "dropped", over)
	}
}

func (r *Recorder) backgroundFlush() {
	defer close(r.done)

	for {
		select {
		case <-r.flushTicker.C:
			ctx, cancel := context.WithTimeout(context.Background(), FlushTimeout)
			if err := r.drain(ctx); err != nil {
				r.log.Error("background flush failed", "error", err)
			}
			cancel()
		case <-r.stopFlush:
			r.log.Info("shutdown: flushing remaining decisions", "pending", r.Count())
			ctx, cancel := context.WithTimeout(context.Background(), FlushTimeout)
			if err := r.drain(ctx); err != nil {
				r.log.Error("shutdown flush failed", "error", err, "lost", r.Count())
			}
			cancel()
			return
		}
	}
}

// Close stops the recorder after a final flush.
func (r *Recorder) Close() error {
	r.stopOnce.Do(func() {
		r.flushTicker.Stop()
		close(r.stopFlush)
	})
	<-r.done
	return nil
}
