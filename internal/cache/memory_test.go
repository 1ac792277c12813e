package cache

import (
	"context"
	"fmt"
	"testing"

	"github.com/tbourn/go-channel-backend/internal/domain"
)

func msg(channelID string, seq int64) domain.Message {
	return domain.Message{
		ID:             fmt.Sprintf("%s-%d", channelID, seq),
		ChannelID:      channelID,
		UserID:         "u1",
		Content:        fmt.Sprintf("msg %d", seq),
		MessageType:    domain.MessageTypeChat,
		SequenceNumber: seq,
	}
}

func fill(t *testing.T, c *MemoryCache, channelID string, seqs ...int64) {
	t.Helper()
	for _, s := range seqs {
		if err := c.Put(context.Background(), msg(channelID, s)); err != nil {
			t.Fatalf("put %d: %v", s, err)
		}
	}
}

func seqsOf(msgs []domain.Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.SequenceNumber
	}
	return out
}

func TestMemoryCache_LatestDescending(t *testing.T) {
	c := NewMemoryCache(100)
	fill(t, c, "ch1", 2, 5, 1, 3, 4) // out of order on purpose

	got, err := c.Latest(context.Background(), "ch1", 3)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	want := []int64{5, 4, 3}
	for i, s := range seqsOf(got) {
		if s != want[i] {
			t.Fatalf("unexpected window: %v", seqsOf(got))
		}
	}
}

func TestMemoryCache_BeforeAfterStrictBounds(t *testing.T) {
	c := NewMemoryCache(100)
	fill(t, c, "ch1", 1, 2, 3, 4, 5)
	ctx := context.Background()

	before, err := c.Before(ctx, "ch1", 4, 10)
	if err != nil {
		t.Fatalf("Before: %v", err)
	}
	// strictly below 4, descending
	if got := seqsOf(before); len(got) != 3 || got[0] != 3 || got[2] != 1 {
		t.Fatalf("unexpected before-window: %v", got)
	}

	after, err := c.After(ctx, "ch1", 2, 2)
	if err != nil {
		t.Fatalf("After: %v", err)
	}
	// strictly above 2, ascending, limited
	if got := seqsOf(after); len(got) != 2 || got[0] != 3 || got[1] != 4 {
		t.Fatalf("unexpected after-window: %v", got)
	}

	// empty windows at the edges
	if got, _ := c.Before(ctx, "ch1", 1, 10); len(got) != 0 {
		t.Fatalf("expected empty before-window, got %v", seqsOf(got))
	}
	if got, _ := c.After(ctx, "ch1", 5, 10); len(got) != 0 {
		t.Fatalf("expected empty after-window, got %v", seqsOf(got))
	}
}

func TestMemoryCache_CapacityEvictsOldest(t *testing.T) {
	c := NewMemoryCache(3)
	fill(t, c, "ch1", 1, 2, 3, 4, 5)

	if n := c.Len("ch1"); n != 3 {
		t.Fatalf("expected 3 cached entries, got %d", n)
	}
	// lowest sequences evicted: only 3..5 remain
	got, _ := c.Latest(context.Background(), "ch1", 10)
	if s := seqsOf(got); len(s) != 3 || s[0] != 5 || s[2] != 3 {
		t.Fatalf("unexpected survivors: %v", s)
	}
}

func TestMemoryCache_PutReplacesSameSequence(t *testing.T) {
	c := NewMemoryCache(10)
	fill(t, c, "ch1", 1)

	m := msg("ch1", 1)
	m.Content = "updated"
	if err := c.Put(context.Background(), m); err != nil {
		t.Fatalf("put: %v", err)
	}

	if n := c.Len("ch1"); n != 1 {
		t.Fatalf("replace must not grow the channel: %d", n)
	}
	got, _ := c.Latest(context.Background(), "ch1", 1)
	if len(got) != 1 || got[0].Content != "updated" {
		t.Fatalf("unexpected entry: %+v", got)
	}
}

func TestMemoryCache_ChannelsAreIsolated(t *testing.T) {
	c := NewMemoryCache(10)
	fill(t, c, "ch1", 1, 2)
	fill(t, c, "ch2", 1)

	got, _ := c.Latest(context.Background(), "ch2", 10)
	if len(got) != 1 || got[0].ChannelID != "ch2" {
		t.Fatalf("channel isolation broken: %+v", got)
	}
	if got, _ := c.Latest(context.Background(), "ch3", 10); len(got) != 0 {
		t.Fatalf("unknown channel must be empty, got %+v", got)
	}
}
