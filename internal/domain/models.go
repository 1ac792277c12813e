// Package domain defines the persistence models for channel messages and
// idempotency records. These types are mapped with GORM and form the core
// data layer of the chat backend.
package domain

import "time"

// Message type values accepted by the core. JOIN and LEAVE exist for
// ephemeral presence notices produced by the transport layer; the core only
// persists what it is explicitly asked to append (normally CHAT).
const (
	MessageTypeChat  = "CHAT"
	MessageTypeJoin  = "JOIN"
	MessageTypeLeave = "LEAVE"
)

// Message is a single durably committed channel message. Messages are
// immutable once created: identity is assigned at append time and never
// reused, and the sequence number is final at commit.
//
// Fields:
//   - ID: stable UUID primary key (char(36)), assigned by the durable log.
//   - ChannelID / UserID: opaque caller-supplied identifiers, non-empty.
//   - Content: arbitrary text payload.
//   - ClientMessageID: caller-supplied retry token; unique only in
//     combination with (UserID, ChannelID).
//   - MessageType: CHAT, JOIN or LEAVE (enforced by DB constraint).
//   - SequenceNumber: strictly increasing per channel, starting at 1, with
//     no gaps among committed rows (enforced by the sequencer plus the
//     unique (channel_id, sequence_number) index).
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type Message struct {
	ID              string    `json:"id"                gorm:"type:char(36);primaryKey"`
	ChannelID       string    `json:"channel_id"        gorm:"type:varchar(64);not null;uniqueIndex:ux_channel_seq,priority:1;index:idx_channel_client,priority:2"`
	UserID          string    `json:"user_id"           gorm:"type:varchar(64);not null;index:idx_channel_client,priority:1"`
	Content         string    `json:"content"           gorm:"type:text;not null"`
	ClientMessageID string    `json:"client_message_id" gorm:"type:varchar(128);not null;index:idx_channel_client,priority:3"`
	MessageType     string    `json:"message_type"      gorm:"type:varchar(16);not null;default:'CHAT';check:message_type IN ('CHAT','JOIN','LEAVE')"`
	SequenceNumber  int64     `json:"sequence_number"   gorm:"not null;uniqueIndex:ux_channel_seq,priority:2"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }
