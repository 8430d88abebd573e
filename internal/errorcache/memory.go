package errorcache

import (
	"context"
	"sync"
)

// MemoryStore is an in-process implementation of Store.
// Use it for a single API instance or for a local binding host.
// Entries only leave the store through Delete or Clear.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Entry),
	}
}

// Get retrieves the entry for key.
func (s *MemoryStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	return entry, ok, nil
}

// Set stores entry under key.
func (s *MemoryStore) Set(ctx context.Context, key string, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = entry
	return nil
}

// Delete removes the entry for key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Update runs fn under the write lock.
func (s *MemoryStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.entries[key]
	next, action := fn(cur, ok)

	switch action {
	case Put:
		s.entries[key] = next
	case Remove:
		delete(s.entries, key)
	}
	return nil
}

// Clear removes all entries.
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]Entry)
	return nil
}

// Len returns the number of entries.
func (s *MemoryStore) Len(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.entries)), nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
