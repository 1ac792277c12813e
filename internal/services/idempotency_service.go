// Package services – IdempotencyService
//
// The idempotency coordinator owns the dedup-key lifecycle and is the
// authority on "has this submission already been handled". The state
// machine is NEW → PROCESSING → COMPLETED | FAILED, with state-dependent
// retention: PROCESSING and COMPLETED records live long enough to absorb a
// realistic retry window, FAILED records only long enough to damp an
// immediate retry storm. Expiry is first-class: every read filters lapsed
// records (so an expired key is NEW again) and a background sweeper reaps
// the rows.
//
// Strategy note: dedup runs the TTL state machine with the claim
// implemented as one atomic insert racing on the record's primary key.
// There is no second lock-of-record path, so nothing can disagree with the
// state machine about whether a key is claimed. The accepted failure mode
// is availability-biased: when the store cannot be read, CheckStatus
// reports NEW rather than blocking writes, while a store that cannot
// accept the claim itself fails the write (no claim, no safe write).
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-channel-backend/internal/domain"
	"github.com/tbourn/go-channel-backend/internal/repo"
)

// StatusNew is the implicit state of a key with no live record.
const StatusNew domain.IdempotencyState = 0

// IdempotencyResult is the outcome of a CheckStatus call.
type IdempotencyResult struct {
	Status    domain.IdempotencyState
	MessageID string // set when Status == StateCompleted
	Reason    string // set when Status == StateFailed
}

// IsNew reports whether the key has never been claimed (or has expired).
func (r IdempotencyResult) IsNew() bool { return r.Status == StatusNew }

// IsProcessing reports whether another claimant is in flight.
func (r IdempotencyResult) IsProcessing() bool { return r.Status == domain.StateProcessing }

// IsCompleted reports whether a durable message already exists for the key.
func (r IdempotencyResult) IsCompleted() bool { return r.Status == domain.StateCompleted }

// IsFailed reports whether the previous attempt failed.
func (r IdempotencyResult) IsFailed() bool { return r.Status == domain.StateFailed }

// IdempotencyService coordinates dedup-key claims over the record store.
type IdempotencyService struct {
	DB *gorm.DB

	// ProcessingTTL bounds how long an in-flight claim blocks the key
	// before it self-heals back to NEW.
	ProcessingTTL time.Duration
	// CompletedTTL is the retry-absorption window for completed keys.
	CompletedTTL time.Duration
	// FailedTTL is the short damping window for failed keys.
	FailedTTL time.Duration
}

// DedupKey derives the deterministic key for a submission. The hash is
// stable across processes and callers: no clock, no randomness, and a
// field separator that keeps ("ab","c") distinct from ("a","bc").
func DedupKey(userID, channelID, clientMessageID string) string {
	h := sha256.New()
	h.Write([]byte(userID))
	h.Write([]byte{0x1f})
	h.Write([]byte(channelID))
	h.Write([]byte{0x1f})
	h.Write([]byte(clientMessageID))
	return hex.EncodeToString(h.Sum(nil))
}

// CheckStatus reads the current state of key without blocking. Any store
// failure degrades to NEW: idempotency falls back to "always allow" during
// an outage instead of failing writes.
func (s *IdempotencyService) CheckStatus(ctx context.Context, key string) IdempotencyResult {
	rec, err := repo.GetIdempotency(ctx, s.DB, key, time.Now().UTC())
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			log.Warn().Err(err).Str("key", key).Msg("idempotency: status check degraded to NEW")
		}
		return IdempotencyResult{Status: StatusNew}
	}
	return IdempotencyResult{
		Status:    rec.State,
		MessageID: rec.MessageID,
		Reason:    rec.Reason,
	}
}

// Claim attempts to move key from NEW to PROCESSING. It returns false when
// another claimant already holds or has completed the key, and an error
// only when the store itself failed. The underlying insert is atomic, so
// two concurrent first-time submissions cannot both win.
func (s *IdempotencyService) Claim(ctx context.Context, key, userID, channelID, clientMessageID string) (bool, error) {
	_, err := repo.ClaimIdempotency(ctx, s.DB, key, userID, channelID, clientMessageID, s.ProcessingTTL)
	if errors.Is(err, repo.ErrDuplicate) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Complete marks key COMPLETED referencing messageID. Best effort: the
// message is already durable, so a failure here is logged rather than
// propagated — the cost is a possible duplicate on a later replay.
func (s *IdempotencyService) Complete(ctx context.Context, key, messageID string) {
	if err := repo.CompleteIdempotency(ctx, s.DB, key, messageID, s.CompletedTTL); err != nil {
		log.Error().Err(err).Str("key", key).Str("message_id", messageID).
			Msg("idempotency: completion not recorded; retries may duplicate")
	}
}

// Fail marks key FAILED with the short retention. Best effort.
func (s *IdempotencyService) Fail(ctx context.Context, key, reason string) {
	if err := repo.FailIdempotency(ctx, s.DB, key, reason, s.FailedTTL); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("idempotency: failure not recorded")
	}
}

// Release removes key outright so the submission can be reprocessed.
// Best effort.
func (s *IdempotencyService) Release(ctx context.Context, key string) {
	if err := repo.DeleteIdempotency(ctx, s.DB, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("idempotency: release failed")
	}
}

// SweepExpired deletes all lapsed records once. Exposed separately from the
// background loop so tests and operators can trigger a pass directly.
func (s *IdempotencyService) SweepExpired(ctx context.Context) (int64, error) {
	return repo.PurgeExpiredIdempotency(ctx, s.DB, time.Now().UTC())
}

// StartSweeper launches the periodic expiry sweep. It stops when ctx is
// cancelled. Lazy expiry on read keeps correctness independent of the
// sweep cadence; the sweeper only bounds table growth.
func (s *IdempotencyService) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				n, err := s.SweepExpired(ctx)
				if err != nil {
					log.Warn().Err(err).Msg("idempotency: sweep failed")
					continue
				}
				if n > 0 {
					log.Debug().Int64("purged", n).Msg("idempotency: swept expired records")
				}
			}
		}
	}()
}
