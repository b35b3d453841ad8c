package cache

import (
	"context"
	"sync"
	"time"

	"github.com/procure/backend/internal/domain/shared"
)

// InMemoryIdempotencyStore implements IdempotencyStore with a local map.
// Suitable for single-instance deployments and tests; state is lost on
// restart.
type InMemoryIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// NewInMemoryIdempotencyStore creates a new in-memory idempotency store
func NewInMemoryIdempotencyStore() *InMemoryIdempotencyStore {
	return &InMemoryIdempotencyStore{
		entries: make(map[string]time.Time),
	}
}

// MarkProcessed marks an event as processed with a TTL. Returns true if the
// event was newly marked.
func (s *InMemoryIdempotencyStore) MarkProcessed(_ context.Context, eventID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if expiry, ok := s.entries[eventID]; ok && expiry.After(now) {
		return false, nil
	}
	s.entries[eventID] = now.Add(ttl)

	// Opportunistic cleanup of expired entries
	for id, expiry := range s.entries {
		if expiry.Before(now) {
			delete(s.entries, id)
		}
	}
	return true, nil
}

// IsProcessed checks if an event has already been processed
func (s *InMemoryIdempotencyStore) IsProcessed(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.entries[eventID]
	return ok && expiry.After(time.Now()), nil
}

var _ shared.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)
