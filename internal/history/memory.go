package history

import (
	"context"
	"sort"
	"sync"
	"time"
)

// defaultMemoryCapacity bounds a MemoryStore created with capacity 0.
const defaultMemoryCapacity = 10000

// MemoryStore keeps entries in memory. When full, the oldest entry is
// dropped.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
	closed   bool
}

// NewMemoryStore creates a store holding at most capacity entries.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &MemoryStore{capacity: capacity}
}

// Insert implements Store.
func (s *MemoryStore) Insert(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if len(s.entries) >= s.capacity {
		s.entries = append(s.entries[:0], s.entries[1:]...)
	}
	s.entries = append(s.entries, e)
	return nil
}

// Recent implements Store.
func (s *MemoryStore) Recent(ctx context.Context, f Filter) ([]Entry, error) {
	f = f.normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	out := make([]Entry, 0, min(f.Limit, len(s.entries)))
	for i := len(s.entries) - 1; i >= 0; i-- {
		if f.matches(s.entries[i]) {
			out = append(out, s.entries[i])
		}
	}
	// Backfilled entries may arrive out of creation order.
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// PurgeOlderThan implements Store.
func (s *MemoryStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	kept := s.entries[:0]
	for _, e := range s.entries {
		if !e.CreatedAt.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	purged := int64(len(s.entries) - len(kept))
	s.entries = kept
	return purged, nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close discards all entries. Later calls fail with ErrStoreClosed.
func (s *MemoryStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.entries = nil
}
