// In-process cache.
//
// MemoryCache keeps per-channel slices sorted ascending by sequence number
// behind a single mutex. It exists for deployments without a Redis endpoint
// and as the hermetic implementation in tests; semantics match RedisCache
// (bounded, recency-biased, sequence-keyed windows).
package cache

import (
	"context"
	"sort"
	"sync"

	"github.com/tbourn/go-channel-backend/internal/domain"
)

// MemoryCache implements Cache with bounded in-memory channel buffers.
// It never returns an error. Safe for concurrent use.
type MemoryCache struct {
	mu       sync.RWMutex
	channels map[string][]domain.Message

	// capacity caps entries kept per channel; lowest sequence numbers are
	// evicted first. <= 0 disables trimming.
	capacity int
}

// NewMemoryCache returns an empty cache. capacity bounds entries per channel.
func NewMemoryCache(capacity int) *MemoryCache {
	return &MemoryCache{
		channels: make(map[string][]domain.Message),
		capacity: capacity,
	}
}

// Put inserts m keeping the channel slice sorted; an existing entry with
// the same sequence number is replaced.
func (c *MemoryCache) Put(_ context.Context, m domain.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.channels[m.ChannelID]
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].SequenceNumber >= m.SequenceNumber
	})
	if i < len(entries) && entries[i].SequenceNumber == m.SequenceNumber {
		entries[i] = m
	} else {
		entries = append(entries, domain.Message{})
		copy(entries[i+1:], entries[i:])
		entries[i] = m
	}
	if c.capacity > 0 && len(entries) > c.capacity {
		// Evict oldest (lowest sequence) entries.
		entries = entries[len(entries)-c.capacity:]
	}
	c.channels[m.ChannelID] = entries
	return nil
}

// Latest returns up to limit entries with the highest sequence numbers,
// descending.
func (c *MemoryCache) Latest(_ context.Context, channelID string, limit int) ([]domain.Message, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := c.channels[channelID]
	out := make([]domain.Message, 0, limit)
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

// Before returns up to limit entries strictly below seq, descending.
func (c *MemoryCache) Before(_ context.Context, channelID string, seq int64, limit int) ([]domain.Message, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := c.channels[channelID]
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].SequenceNumber >= seq
	})
	out := make([]domain.Message, 0, limit)
	for j := i - 1; j >= 0 && len(out) < limit; j-- {
		out = append(out, entries[j])
	}
	return out, nil
}

// After returns up to limit entries strictly above seq, ascending.
func (c *MemoryCache) After(_ context.Context, channelID string, seq int64, limit int) ([]domain.Message, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := c.channels[channelID]
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].SequenceNumber > seq
	})
	out := make([]domain.Message, 0, limit)
	for ; i < len(entries) && len(out) < limit; i++ {
		out = append(out, entries[i])
	}
	return out, nil
}

// Len reports how many entries are cached for a channel.
func (c *MemoryCache) Len(channelID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.channels[channelID])
}
