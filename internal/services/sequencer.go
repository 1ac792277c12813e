// Package services – Sequencer
//
// The sequencer assigns the next monotonically increasing sequence number
// for a channel. Mutual exclusion is scoped per channel: each channel gets
// its own mutex, created lazily in a map guarded by a second mutex, so
// writers to different channels never block each other and no global lock
// exists.
//
// The next value is derived from the current maximum committed sequence
// read inside the caller's transaction. The caller must hold the channel
// lock for the whole read-increment-append-commit span; an aborted
// transaction then rolls back the assigned number together with the append,
// which keeps the committed set per channel exactly {1..maxSeq} with no
// gaps in all cases, not just the happy path.
package services

import (
	"sync"

	"gorm.io/gorm"

	"github.com/tbourn/go-channel-backend/internal/repo"
)

// Sequencer hands out per-channel sequence numbers under per-channel locks.
// Safe for concurrent use. Channel mutexes are never evicted: a live
// deployment has a bounded set of active channels and a mutex is two words.
type Sequencer struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSequencer returns a ready Sequencer.
func NewSequencer() *Sequencer {
	return &Sequencer{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for channelID, creating it on first use, and
// returns the unlock function. The lock must be held until the enclosing
// write transaction commits or rolls back.
func (s *Sequencer) Lock(channelID string) func() {
	s.mu.Lock()
	l, ok := s.locks[channelID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[channelID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Next derives the next sequence number for channelID from the maximum
// committed value visible to tx. A channel with no messages yields 1.
// Callers must hold the channel lock obtained via Lock.
func (s *Sequencer) Next(tx *gorm.DB, channelID string) (int64, error) {
	max, err := repo.MaxSequence(tx, channelID)
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}
