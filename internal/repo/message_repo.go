// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file is the durable log: an append-only, per-channel
// ordered store of messages and the source of truth for message identity
// and final sequence assignment.
package repo

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-channel-backend/internal/domain"
)

// AppendMessage inserts a new message row with the given committed sequence
// number. Identity and the creation timestamp are assigned here and never
// change afterwards. Callers pass the transaction handle so the append
// commits (or rolls back) atomically with the sequence derivation.
func AppendMessage(db *gorm.DB, channelID, userID, content, clientMessageID, messageType string, seq int64) (*domain.Message, error) {
	m := &domain.Message{
		ID:              uuid.NewString(),
		ChannelID:       channelID,
		UserID:          userID,
		Content:         content,
		ClientMessageID: clientMessageID,
		MessageType:     messageType,
		SequenceNumber:  seq,
		CreatedAt:       time.Now().UTC(),
	}
	return m, db.Create(m).Error
}

// GetMessage fetches a message by ID, or ErrNotFound.
func GetMessage(db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// MaxSequence returns the highest committed sequence number for a channel,
// or 0 when the channel has no messages. A raw COALESCE(MAX(...)) keeps the
// empty-channel case a plain scalar read. Concurrent writers to the same
// channel are serialized by the sequencer's channel lock, not here.
func MaxSequence(db *gorm.DB, channelID string) (int64, error) {
	var max int64
	err := db.Raw(
		"SELECT COALESCE(MAX(sequence_number), 0) FROM messages WHERE channel_id = ?",
		channelID,
	).Scan(&max).Error
	return max, err
}

// ListDescending returns up to limit most recent messages for a channel,
// ordered by sequence number descending.
func ListDescending(db *gorm.DB, channelID string, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.
		Where("channel_id = ?", channelID).
		Order("sequence_number DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListDescendingBefore returns up to limit messages with sequence numbers
// strictly below seq, ordered descending (backward pagination).
func ListDescendingBefore(db *gorm.DB, channelID string, seq int64, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.
		Where("channel_id = ? AND sequence_number < ?", channelID, seq).
		Order("sequence_number DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListAscendingAfter returns up to limit messages with sequence numbers
// strictly above seq, ordered ascending (forward stream recovery).
func ListAscendingAfter(db *gorm.DB, channelID string, seq int64, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.
		Where("channel_id = ? AND sequence_number > ?", channelID, seq).
		Order("sequence_number ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
