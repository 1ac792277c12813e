// Package services – MessageService
//
// This file implements MessageService, the component that orchestrates the
// write path (idempotency coordinator + sequencer + durable log) and serves
// hybrid reads (bounded recency cache merged with the durable log). It is
// the root of the core: everything the transport layer calls goes through
// Submit and Fetch.
//
// The cache is side-effect-only. It never participates in the success or
// failure of a write: population is fire-and-forget, lookups degrade to a
// miss, and disabling the cache entirely changes latency but never the set
// of messages returned.
//
// Observability: public methods are OpenTelemetry-instrumented; spans carry
// channel/user identifiers and pagination parameters.
package services

import (
	"context"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-channel-backend/internal/cache"
	"github.com/tbourn/go-channel-backend/internal/domain"
	"github.com/tbourn/go-channel-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SubmitRequest carries one message submission. ClientMessageID is the
// caller's retry token; resubmitting the same (UserID, ChannelID,
// ClientMessageID) is the idempotent-retry contract.
type SubmitRequest struct {
	UserID          string `json:"user_id"`
	ChannelID       string `json:"channel_id"`
	Content         string `json:"content"`
	MessageType     string `json:"message_type"`
	ClientMessageID string `json:"client_message_id"`
}

// Validate rejects malformed submissions before any side effect occurs.
func (r SubmitRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required, validation.Length(1, 64)),
		validation.Field(&r.ChannelID, validation.Required, validation.Length(1, 64)),
		validation.Field(&r.Content, validation.Required),
		validation.Field(&r.ClientMessageID, validation.Required, validation.Length(1, 128)),
		validation.Field(&r.MessageType, validation.Required,
			validation.In(domain.MessageTypeChat, domain.MessageTypeJoin, domain.MessageTypeLeave)),
	)
}

// MessageService coordinates idempotent writes and hybrid reads.
type MessageService struct {
	DB   *gorm.DB
	Seq  *Sequencer
	Idem *IdempotencyService

	// Cache is optional; nil runs every read against the durable log.
	Cache cache.Cache

	// Pagination guards; zero values fall back to 20/100.
	DefaultPageSize int
	MaxPageSize     int
}

// Submit appends one message to the channel, deduplicating retries by
// (UserID, ChannelID, ClientMessageID). The bool result is true when a new
// message was created and false when an already-committed message was
// replayed. On ErrConflict another submission with the same key is in
// flight; the caller retries shortly. After any other error the caller must
// not assume the message was or was not written — retrying with the same
// key resolves the ambiguity.
func (s *MessageService) Submit(ctx context.Context, req SubmitRequest) (*domain.Message, bool, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Submit",
		trace.WithAttributes(
			attribute.String("channel.id", req.ChannelID),
			attribute.String("user.id", req.UserID),
		),
	)
	defer span.End()

	if req.MessageType == "" {
		req.MessageType = domain.MessageTypeChat
	}
	if err := req.Validate(); err != nil {
		return nil, false, err
	}

	key := DedupKey(req.UserID, req.ChannelID, req.ClientMessageID)

	// Resolve the key's current state before claiming.
	switch st := s.Idem.CheckStatus(ctx, key); {
	case st.IsCompleted():
		// Idempotent success: return the committed message, no side effects.
		m, err := repo.GetMessage(s.DB.WithContext(ctx), st.MessageID)
		if err != nil {
			// A completed record pointing at nothing is an internal
			// inconsistency, not a retryable miss.
			return nil, false, ErrMessageNotFound
		}
		return m, false, nil
	case st.IsProcessing():
		return nil, false, ErrConflict
	case st.IsFailed():
		s.Idem.Release(ctx, key)
	}

	claimed, err := s.Idem.Claim(ctx, key, req.UserID, req.ChannelID, req.ClientMessageID)
	if err != nil {
		return nil, false, ErrStoreUnavailable
	}
	if !claimed {
		// Lost the race against a concurrent identical submission.
		return nil, false, ErrConflict
	}

	// Sequence assignment, append and commit run under the channel lock so
	// no concurrent writer can observe or reuse the number, and a rollback
	// retracts it.
	unlock := s.Seq.Lock(req.ChannelID)
	defer unlock()

	var msg *domain.Message
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, err := s.Seq.Next(tx, req.ChannelID)
		if err != nil {
			return err
		}
		m, err := repo.AppendMessage(tx, req.ChannelID, req.UserID, req.Content, req.ClientMessageID, req.MessageType, seq)
		if err != nil {
			return err
		}
		msg = m
		return nil
	})
	if err != nil {
		s.Idem.Fail(ctx, key, err.Error())
		return nil, false, err
	}

	s.Idem.Complete(ctx, key, msg.ID)

	// Opportunistic cache population, off the write's critical path.
	if s.Cache != nil {
		m := *msg
		go func() {
			if err := s.Cache.Put(context.Background(), m); err != nil {
				log.Warn().Err(err).Str("channel_id", m.ChannelID).
					Int64("sequence", m.SequenceNumber).
					Msg("cache: write-through failed")
			}
		}()
	}

	return msg, true, nil
}

// Fetch returns one page of messages for a channel. Exactly one of afterSeq
// and beforeSeq may be set; with afterSeq the page ascends (forward stream
// recovery), otherwise it descends from the newest matching message.
// The cache is consulted first; any shortfall is covered by the durable
// log, merged, deduplicated by sequence number, and the log rows are
// backfilled into the cache. A cache failure degrades to a log-only read
// and is never surfaced to the caller.
func (s *MessageService) Fetch(ctx context.Context, channelID string, afterSeq, beforeSeq *int64, pageSize int) ([]domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Fetch",
		trace.WithAttributes(
			attribute.String("channel.id", channelID),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if err := validation.Validate(channelID, validation.Required, validation.Length(1, 64)); err != nil {
		return nil, err
	}
	if afterSeq != nil && beforeSeq != nil {
		return nil, ErrCursorConflict
	}
	pageSize = s.clampPageSize(pageSize)

	cached := s.cacheWindow(ctx, channelID, afterSeq, beforeSeq, pageSize)
	if len(cached) >= pageSize {
		return cached[:pageSize], nil
	}

	remaining := pageSize - len(cached)
	fromLog, err := s.logWindow(ctx, channelID, afterSeq, beforeSeq, remaining, cached)
	if err != nil {
		return nil, err
	}

	merged := mergeBySequence(cached, fromLog, afterSeq != nil)
	if len(merged) > pageSize {
		merged = merged[:pageSize]
	}

	s.backfill(ctx, fromLog)
	return merged, nil
}

// clampPageSize applies the default and the upper bound.
func (s *MessageService) clampPageSize(n int) int {
	def, max := s.DefaultPageSize, s.MaxPageSize
	if def <= 0 {
		def = 20
	}
	if max <= 0 {
		max = 100
	}
	if n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// cacheWindow queries the cache for the requested window. Failures and a
// nil cache both degrade to an empty result.
func (s *MessageService) cacheWindow(ctx context.Context, channelID string, afterSeq, beforeSeq *int64, limit int) []domain.Message {
	if s.Cache == nil {
		return nil
	}
	var (
		out []domain.Message
		err error
	)
	switch {
	case afterSeq != nil:
		out, err = s.Cache.After(ctx, channelID, *afterSeq, limit)
	case beforeSeq != nil:
		out, err = s.Cache.Before(ctx, channelID, *beforeSeq, limit)
	default:
		out, err = s.Cache.Latest(ctx, channelID, limit)
	}
	if err != nil {
		log.Warn().Err(err).Str("channel_id", channelID).Msg("cache: lookup failed, degrading to log-only read")
		return nil
	}
	return out
}

// logWindow queries the durable log for the remainder of a page, moving the
// cursor past what the cache already supplied so the two sources abut.
func (s *MessageService) logWindow(ctx context.Context, channelID string, afterSeq, beforeSeq *int64, limit int, cached []domain.Message) ([]domain.Message, error) {
	db := s.DB.WithContext(ctx)

	if afterSeq != nil {
		// Forward: continue above the highest cached sequence.
		bound := *afterSeq
		if max, ok := maxSequenceOf(cached); ok {
			bound = max
		}
		return repo.ListAscendingAfter(db, channelID, bound, limit)
	}

	// Backward or latest: continue below the lowest cached sequence.
	if min, ok := minSequenceOf(cached); ok {
		return repo.ListDescendingBefore(db, channelID, min, limit)
	}
	if beforeSeq != nil {
		return repo.ListDescendingBefore(db, channelID, *beforeSeq, limit)
	}
	return repo.ListDescending(db, channelID, limit)
}

// backfill opportunistically writes log rows into the cache. Errors are
// swallowed; the cache stays best effort.
func (s *MessageService) backfill(ctx context.Context, msgs []domain.Message) {
	if s.Cache == nil || len(msgs) == 0 {
		return
	}
	for _, m := range msgs {
		if err := s.Cache.Put(ctx, m); err != nil {
			log.Warn().Err(err).Str("channel_id", m.ChannelID).Msg("cache: backfill failed")
			return
		}
	}
}

// mergeBySequence combines the two sources, deduplicates by sequence
// number, and sorts ascending for forward reads or descending otherwise.
func mergeBySequence(cached, fromLog []domain.Message, ascending bool) []domain.Message {
	seen := make(map[int64]struct{}, len(cached)+len(fromLog))
	out := make([]domain.Message, 0, len(cached)+len(fromLog))
	for _, m := range cached {
		if _, dup := seen[m.SequenceNumber]; dup {
			continue
		}
		seen[m.SequenceNumber] = struct{}{}
		out = append(out, m)
	}
	for _, m := range fromLog {
		if _, dup := seen[m.SequenceNumber]; dup {
			continue
		}
		seen[m.SequenceNumber] = struct{}{}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if ascending {
			return out[i].SequenceNumber < out[j].SequenceNumber
		}
		return out[i].SequenceNumber > out[j].SequenceNumber
	})
	return out
}

func maxSequenceOf(msgs []domain.Message) (int64, bool) {
	if len(msgs) == 0 {
		return 0, false
	}
	max := msgs[0].SequenceNumber
	for _, m := range msgs[1:] {
		if m.SequenceNumber > max {
			max = m.SequenceNumber
		}
	}
	return max, true
}

func minSequenceOf(msgs []domain.Message) (int64, bool) {
	if len(msgs) == 0 {
		return 0, false
	}
	min := msgs[0].SequenceNumber
	for _, m := range msgs[1:] {
		if m.SequenceNumber < min {
			min = m.SequenceNumber
		}
	}
	return min, true
}
