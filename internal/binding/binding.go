// Package binding connects one data-fetching consumer to the error cache and
// exposes whether its failure should currently be displayed.
package binding

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/facebookgo/clock"

	"grandgold-errcache/internal/errorcache"
)

// State is a snapshot of a binding.
type State struct {
	Key     string
	Visible bool
	Err     error
	Reason  errorcache.Reason
}

// Option configures a Binding.
type Option func(*Binding)

// WithEnabled turns display on or off. A disabled binding never reports
// visible but still feeds outcomes into the cache.
func WithEnabled(enabled bool) Option {
	return func(b *Binding) { b.enabled = enabled }
}

// WithOnChange registers fn to be called whenever visibility or the shown
// error changes. fn runs without the binding's lock held.
func WithOnChange(fn func(State)) Option {
	return func(b *Binding) { b.onChange = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Binding) {
		if logger != nil {
			b.log = logger
		}
	}
}

// Binding is the live association between one operation instance and the
// suppression state for its current key. Hosts must call Observe for every
// outcome, SetOperation when the operation or its variables change, and
// Dispose on teardown.
type Binding struct {
	cache    *errorcache.Cache
	clock    clock.Clock
	log      *slog.Logger
	enabled  bool
	onChange func(State)

	mu        sync.Mutex
	operation string
	key       string
	keyErr    error
	visible   bool
	shown     error
	last      error
	reason    errorcache.Reason
	timer     *clock.Timer
	disposed  bool
}

// New binds operation with variables to cache.
func New(cache *errorcache.Cache, operation string, variables map[string]any, opts ...Option) *Binding {
	b := &Binding{
		cache:   cache,
		clock:   cache.Clock(),
		log:     slog.Default(),
		enabled: true,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.With("component", "Binding", "operation", operation)

	b.operation = operation
	b.key, b.keyErr = errorcache.DeriveKey(operation, variables)
	if b.keyErr != nil {
		b.log.Warn("cannot derive cache key, errors will always show", "error", b.keyErr)
	}
	return b
}

// SetOperation rebinds to a new operation or variable set. When the derived
// key changes, all local state resets to not visible.
func (b *Binding) SetOperation(ctx context.Context, operation string, variables map[string]any) {
	key, keyErr := errorcache.DeriveKey(operation, variables)

	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return
	}
	if keyErr == nil && b.keyErr == nil && key == b.key {
		b.operation = operation
		b.mu.Unlock()
		return
	}

	b.operation = operation
	b.key, b.keyErr = key, keyErr
	b.stopTimerLocked()
	changed := b.setLocked(false, nil, "")
	b.last = nil
	state := b.stateLocked()
	b.mu.Unlock()

	if keyErr != nil {
		b.log.Warn("cannot derive cache key, errors will always show", "operation", operation, "error", keyErr)
	}
	b.notify(changed, state)
}

// Observe feeds the latest outcome of the bound operation. A nil err is a
// success: the cache entry is cleared and nothing is visible.
func (b *Binding) Observe(ctx context.Context, err error) {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return
	}

	b.stopTimerLocked()

	if err == nil {
		b.last = nil
		if b.keyErr == nil {
			if cerr := b.cache.Clear(ctx, b.key); cerr != nil {
				b.log.Warn("failed to clear cache entry on success", "key", b.key, "error", cerr)
			}
		}
		changed := b.setLocked(false, nil, errorcache.ReasonSuccess)
		state := b.stateLocked()
		b.mu.Unlock()
		b.notify(changed, state)
		return
	}

	b.last = err
	changed := b.evaluateLocked(ctx, err)
	state := b.stateLocked()
	b.mu.Unlock()
	b.notify(changed, state)
}

// Dismiss records a manual dismissal for the current key and hides the error.
// The dismissal lasts until a success or a key change.
func (b *Binding) Dismiss(ctx context.Context) {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return
	}

	b.stopTimerLocked()
	if b.keyErr == nil {
		if err := b.cache.Dismiss(ctx, b.key); err != nil {
			b.log.Warn("failed to record dismissal", "key", b.key, "error", err)
		}
	}
	changed := b.setLocked(false, nil, errorcache.ReasonDismissed)
	state := b.stateLocked()
	b.mu.Unlock()
	b.notify(changed, state)
}

// Dispose stops pending timers. The binding ignores all calls afterwards.
func (b *Binding) Dispose() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopTimerLocked()
	b.disposed = true
}

// Visible reports whether the caller should render the failure now.
func (b *Binding) Visible() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.visible
}

// Err returns the error currently shown, or nil.
func (b *Binding) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.shown
}

// Key returns the current cache key. It is empty if derivation failed.
func (b *Binding) Key() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.key
}

// State returns a snapshot of the binding.
func (b *Binding) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

// evaluateLocked consults the suppression policy for err and arms the
// re-surface timer when a duplicate is suppressed.
func (b *Binding) evaluateLocked(ctx context.Context, err error) bool {
	if b.keyErr != nil {
		return b.setLocked(b.enabled, err, errorcache.ReasonKeyError)
	}

	d := b.cache.Evaluate(ctx, b.key, err.Error())
	if d.Reason == errorcache.ReasonDuplicate {
		b.armTimerLocked(d.Entry.FirstSeenAt.Add(b.cache.TTL()))
	}

	show := d.Show && b.enabled
	if show {
		return b.setLocked(true, err, d.Reason)
	}
	return b.setLocked(false, nil, d.Reason)
}

// armTimerLocked schedules a re-evaluation of the last error at deadline.
func (b *Binding) armTimerLocked(deadline time.Time) {
	delay := deadline.Sub(b.clock.Now())
	if delay < 0 {
		delay = 0
	}

	var t *clock.Timer
	t = b.clock.AfterFunc(delay, func() {
		b.mu.Lock()
		if b.disposed || b.timer != t || b.last == nil {
			b.mu.Unlock()
			return
		}
		b.timer = nil
		changed := b.evaluateLocked(context.Background(), b.last)
		state := b.stateLocked()
		b.mu.Unlock()
		b.notify(changed, state)
	})
	b.timer = t
}

func (b *Binding) stopTimerLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

// setLocked updates visibility and reports whether anything observable changed.
func (b *Binding) setLocked(visible bool, shown error, reason errorcache.Reason) bool {
	changed := b.visible != visible || b.shown != shown
	b.visible = visible
	b.shown = shown
	b.reason = reason
	return changed
}

func (b *Binding) stateLocked() State {
	return State{
		Key:     b.key,
		Visible: b.visible,
		Err:     b.shown,
		Reason:  b.reason,
	}
}

func (b *Binding) notify(changed bool, state State) {
	if changed && b.onChange != nil {
		b.onChange(state)
	}
}
