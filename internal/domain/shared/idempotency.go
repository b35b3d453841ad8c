package shared

import (
	"context"
	"time"
)

// IdempotencyStore deduplicates event deliveries across handler invocations.
// MarkProcessed must be atomic: exactly one caller wins for a given event ID.
type IdempotencyStore interface {
	// MarkProcessed marks an event as processed with a TTL. Returns true if
	// the event was newly marked, false if it was already processed.
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	// IsProcessed checks if an event has already been processed
	IsProcessed(ctx context.Context, eventID string) (bool, error)
}
