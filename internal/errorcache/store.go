package errorcache

import (
	"context"
)

// UpdateAction tells a Store what to do with the entry returned by an UpdateFunc.
type UpdateAction int

const (
	// Keep leaves the stored entry untouched.
	Keep UpdateAction = iota
	// Put writes the returned entry.
	Put
	// Remove deletes the entry.
	Remove
)

// UpdateFunc receives the current entry for a key (ok is false when absent)
// and returns the entry to write along with the action to take.
type UpdateFunc func(current Entry, ok bool) (Entry, UpdateAction)

// Store holds the mapping from cache key to entry.
// The memory implementation serves single-instance deployments, the Redis
// implementation lets several API replicas share suppression state.
type Store interface {
	// Get retrieves the entry for key. ok is false if there is none.
	Get(ctx context.Context, key string) (entry Entry, ok bool, err error)

	// Set stores entry under key, overwriting any existing entry.
	Set(ctx context.Context, key string, entry Entry) error

	// Delete removes the entry for key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Update atomically reads, transforms and writes the entry for key.
	Update(ctx context.Context, key string, fn UpdateFunc) error

	// Clear removes all entries.
	Clear(ctx context.Context) error

	// Len returns the number of stored entries.
	Len(ctx context.Context) (int64, error)

	// Ping reports whether the backing storage is reachable.
	Ping(ctx context.Context) error
}

// Error is a sentinel error raised by this package.
type Error string

func (e Error) Error() string { return string(e) }

const (
	// ErrEntryNotFound indicates there is no cached error for the key.
	ErrEntryNotFound Error = "error cache entry not found"

	// ErrUnserializableVariables indicates operation variables could not be
	// turned into a cache key.
	ErrUnserializableVariables Error = "operation variables are not serializable"

	// ErrUpdateConflict indicates an optimistic update kept losing to
	// concurrent writers.
	ErrUpdateConflict Error = "error cache update conflict"
)
