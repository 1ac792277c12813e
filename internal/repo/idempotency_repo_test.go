package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-channel-backend/internal/domain"
)

func TestClaimIdempotency_FirstClaimWins(t *testing.T) {
	db := newRepoDB(t, &domain.Idempotency{})
	ctx := context.Background()

	rec, err := ClaimIdempotency(ctx, db, "k1", "u1", "ch1", "cm-1", time.Hour)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if rec.State != domain.StateProcessing || rec.Key != "k1" {
		t.Fatalf("unexpected claim record: %+v", rec)
	}
	if !rec.ExpiresAt.After(time.Now().UTC()) {
		t.Fatalf("expiry not in the future: %v", rec.ExpiresAt)
	}

	// second claim on a live key loses
	if _, err := ClaimIdempotency(ctx, db, "k1", "u1", "ch1", "cm-1", time.Hour); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestClaimIdempotency_ExpiredRowIsReclaimable(t *testing.T) {
	db := newRepoDB(t, &domain.Idempotency{})
	ctx := context.Background()

	// negative TTL: the claim is born expired
	if _, err := ClaimIdempotency(ctx, db, "k1", "u1", "ch1", "cm-1", -time.Minute); err != nil {
		t.Fatalf("expired claim: %v", err)
	}

	// timeout self-healing: the lapsed row must not block a new claim
	rec, err := ClaimIdempotency(ctx, db, "k1", "u1", "ch1", "cm-1", time.Hour)
	if err != nil {
		t.Fatalf("reclaim after expiry: %v", err)
	}
	if rec.State != domain.StateProcessing {
		t.Fatalf("unexpected state: %+v", rec)
	}
}

func TestGetIdempotency_FiltersExpired(t *testing.T) {
	db := newRepoDB(t, &domain.Idempotency{})
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := GetIdempotency(ctx, db, "missing", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing key, got %v", err)
	}

	if _, err := ClaimIdempotency(ctx, db, "k1", "u1", "ch1", "cm-1", time.Hour); err != nil {
		t.Fatalf("claim: %v", err)
	}
	rec, err := GetIdempotency(ctx, db, "k1", now)
	if err != nil {
		t.Fatalf("get live: %v", err)
	}
	if rec.State != domain.StateProcessing {
		t.Fatalf("unexpected record: %+v", rec)
	}

	// a read clock past the expiry sees the key as absent
	if _, err := GetIdempotency(ctx, db, "k1", now.Add(2*time.Hour)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound past expiry, got %v", err)
	}
}

func TestCompleteIdempotency_UpdatesStateAndExpiry(t *testing.T) {
	db := newRepoDB(t, &domain.Idempotency{})
	ctx := context.Background()

	if _, err := ClaimIdempotency(ctx, db, "k1", "u1", "ch1", "cm-1", time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := CompleteIdempotency(ctx, db, "k1", "msg-42", time.Hour); err != nil {
		t.Fatalf("complete: %v", err)
	}

	rec, err := GetIdempotency(ctx, db, "k1", time.Now().UTC())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.State != domain.StateCompleted || rec.MessageID != "msg-42" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	// retention switched to the completed window
	if rec.ExpiresAt.Before(time.Now().UTC().Add(30 * time.Minute)) {
		t.Fatalf("completed expiry too short: %v", rec.ExpiresAt)
	}
}

func TestCompleteIdempotency_UpsertsMissingRow(t *testing.T) {
	db := newRepoDB(t, &domain.Idempotency{})
	ctx := context.Background()

	// no claim row at all: completion must still leave a COMPLETED record
	if err := CompleteIdempotency(ctx, db, "k-gone", "msg-7", time.Hour); err != nil {
		t.Fatalf("complete without claim: %v", err)
	}
	rec, err := GetIdempotency(ctx, db, "k-gone", time.Now().UTC())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.State != domain.StateCompleted || rec.MessageID != "msg-7" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestFailIdempotency_RecordsReason(t *testing.T) {
	db := newRepoDB(t, &domain.Idempotency{})
	ctx := context.Background()

	if _, err := ClaimIdempotency(ctx, db, "k1", "u1", "ch1", "cm-1", time.Hour); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := FailIdempotency(ctx, db, "k1", "disk full", 5*time.Minute); err != nil {
		t.Fatalf("fail: %v", err)
	}

	rec, err := GetIdempotency(ctx, db, "k1", time.Now().UTC())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.State != domain.StateFailed || rec.Reason != "disk full" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestDeleteIdempotency_MakesKeyClaimable(t *testing.T) {
	db := newRepoDB(t, &domain.Idempotency{})
	ctx := context.Background()

	if _, err := ClaimIdempotency(ctx, db, "k1", "u1", "ch1", "cm-1", time.Hour); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := DeleteIdempotency(ctx, db, "k1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := ClaimIdempotency(ctx, db, "k1", "u1", "ch1", "cm-1", time.Hour); err != nil {
		t.Fatalf("reclaim after delete: %v", err)
	}
}

func TestPurgeExpiredIdempotency_RemovesOnlyLapsed(t *testing.T) {
	db := newRepoDB(t, &domain.Idempotency{})
	ctx := context.Background()

	if _, err := ClaimIdempotency(ctx, db, "live", "u1", "ch1", "cm-1", time.Hour); err != nil {
		t.Fatalf("claim live: %v", err)
	}
	if _, err := ClaimIdempotency(ctx, db, "stale", "u1", "ch1", "cm-2", -time.Minute); err != nil {
		t.Fatalf("claim stale: %v", err)
	}

	n, err := PurgeExpiredIdempotency(ctx, db, time.Now().UTC())
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purged row, got %d", n)
	}
	if _, err := GetIdempotency(ctx, db, "live", time.Now().UTC()); err != nil {
		t.Fatalf("live key must survive the sweep: %v", err)
	}
}
