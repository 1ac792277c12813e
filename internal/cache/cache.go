// Package cache provides the bounded recency cache consulted on the hybrid
// read path. The cache is a derived, best-effort projection of the durable
// log: entries may be evicted, stale, or partially populated at any time,
// and no caller may treat its contents as authoritative. Implementations
// must be safe for concurrent use.
package cache

import (
	"context"

	"github.com/tbourn/go-channel-backend/internal/domain"
)

// Cache stores recent message snapshots per channel, keyed by sequence
// number. Read methods return at most limit entries already ordered the way
// the corresponding query consumes them; a miss is an empty slice, not an
// error. Errors are reserved for backing-store failures, which callers
// degrade to a miss.
type Cache interface {
	// Put inserts (or refreshes) one message snapshot.
	Put(ctx context.Context, m domain.Message) error

	// Latest returns up to limit most recent messages, descending.
	Latest(ctx context.Context, channelID string, limit int) ([]domain.Message, error)

	// Before returns up to limit messages with sequence numbers strictly
	// below seq, descending.
	Before(ctx context.Context, channelID string, seq int64, limit int) ([]domain.Message, error)

	// After returns up to limit messages with sequence numbers strictly
	// above seq, ascending.
	After(ctx context.Context, channelID string, seq int64, limit int) ([]domain.Message, error)
}
