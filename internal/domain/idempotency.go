// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the repository and service layers.
package domain

import "time"

// IdempotencyState enumerates the lifecycle states of a dedup key. The NEW
// state is implicit: a key with no live record (absent or expired) is NEW.
type IdempotencyState int

const (
	// StateProcessing marks a key claimed by a writer whose append has not
	// completed yet.
	StateProcessing IdempotencyState = iota + 1
	// StateCompleted marks a key whose message is durably committed;
	// MessageID references it.
	StateCompleted
	// StateFailed marks a key whose write failed; Reason carries the cause.
	// Failed records carry a short TTL so an immediate retry storm is
	// absorbed while a later retry is still possible.
	StateFailed
)

// Idempotency records the outcome of a previously claimed submission, keyed
// by the deterministic dedup key derived from (user_id, channel_id,
// client_message_id). The primary key doubles as the claim lock: the atomic
// insert racing on it is what closes the two-concurrent-first-submissions
// window. Rows past ExpiresAt are treated as absent (NEW) on every read and
// reaped by the background sweeper.
type Idempotency struct {
	Key             string           `gorm:"type:char(64);primaryKey"`
	UserID          string           `gorm:"type:varchar(64);not null"`
	ChannelID       string           `gorm:"type:varchar(64);not null"`
	ClientMessageID string           `gorm:"type:varchar(128);not null"`
	State           IdempotencyState `gorm:"type:INTEGER NOT NULL"`
	MessageID       string           `gorm:"type:char(36)"`
	Reason          string           `gorm:"type:text"`
	CreatedAt       time.Time        `gorm:"autoCreateTime"`
	ExpiresAt       time.Time        `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
