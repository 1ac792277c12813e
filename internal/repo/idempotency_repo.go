// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the Idempotency
// model: claim is an atomic insert racing on the primary key, and every
// read applies lazy expiry so stale records behave as absent.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-channel-backend/internal/domain"
)

// GetIdempotency returns the non-expired record for key, or ErrNotFound.
// Expired rows are filtered here rather than deleted; the sweeper reaps
// them later.
func GetIdempotency(ctx context.Context, db *gorm.DB, key string, now time.Time) (*domain.Idempotency, error) {
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("key = ? AND expires_at > ?", key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ClaimIdempotency atomically inserts a PROCESSING record for key and
// returns ErrDuplicate when a live record already exists. The single INSERT
// racing on the primary key is the claim primitive; there is no
// read-then-write window. A leftover expired row under the same key is
// cleared first so the key becomes claimable again after its TTL lapses.
func ClaimIdempotency(ctx context.Context, db *gorm.DB, key, userID, channelID, clientMessageID string, ttl time.Duration) (*domain.Idempotency, error) {
	now := time.Now().UTC()
	tx := db.WithContext(ctx)

	// Timeout-based self-healing: an abandoned claim whose TTL lapsed must
	// not block the key forever.
	tx.Where("key = ? AND expires_at <= ?", key, now).Delete(&domain.Idempotency{})

	rec := &domain.Idempotency{
		Key:             key,
		UserID:          userID,
		ChannelID:       channelID,
		ClientMessageID: clientMessageID,
		State:           domain.StateProcessing,
		CreatedAt:       now,
		ExpiresAt:       now.Add(ttl),
	}
	if err := tx.Create(rec).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// CompleteIdempotency unconditionally overwrites the record for key to
// COMPLETED with the long-retention expiry. The write is an upsert so a
// record whose row vanished between claim and completion still ends up
// COMPLETED.
func CompleteIdempotency(ctx context.Context, db *gorm.DB, key, messageID string, ttl time.Duration) error {
	now := time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Idempotency{}).
		Where("key = ?", key).
		Updates(map[string]any{
			"state":      domain.StateCompleted,
			"message_id": messageID,
			"reason":     "",
			"expires_at": now.Add(ttl),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return db.WithContext(ctx).Create(&domain.Idempotency{
			Key:       key,
			State:     domain.StateCompleted,
			MessageID: messageID,
			CreatedAt: now,
			ExpiresAt: now.Add(ttl),
		}).Error
	}
	return nil
}

// FailIdempotency marks the record for key FAILED with the short-retention
// expiry, keeping the failure reason for diagnostics.
func FailIdempotency(ctx context.Context, db *gorm.DB, key, reason string, ttl time.Duration) error {
	now := time.Now().UTC()
	return db.WithContext(ctx).
		Model(&domain.Idempotency{}).
		Where("key = ?", key).
		Updates(map[string]any{
			"state":      domain.StateFailed,
			"reason":     reason,
			"expires_at": now.Add(ttl),
		}).Error
}

// DeleteIdempotency removes the record for key outright, making the key
// immediately claimable again.
func DeleteIdempotency(ctx context.Context, db *gorm.DB, key string) error {
	return db.WithContext(ctx).Where("key = ?", key).Delete(&domain.Idempotency{}).Error
}

// PurgeExpiredIdempotency deletes all records whose expiry has lapsed and
// reports how many rows were removed. Called by the background sweeper.
func PurgeExpiredIdempotency(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&domain.Idempotency{})
	return res.RowsAffected, res.Error
}
