// Redis-backed cache.
//
// Each channel maps to one sorted set whose members are JSON message
// snapshots scored by sequence number, so range queries by sequence are
// single ZSET calls. The set is trimmed by rank after every insert to keep
// the per-channel footprint bounded.
package cache

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-channel-backend/internal/domain"
)

const redisKeyPrefix = "message_cache:"

// RedisCache implements Cache on a Redis sorted set per channel.
type RedisCache struct {
	rdb redis.UniversalClient

	// capacity caps entries kept per channel; lowest sequence numbers are
	// evicted first. <= 0 disables trimming.
	capacity int64
}

// NewRedisCache wraps an existing client. capacity bounds entries per channel.
func NewRedisCache(rdb redis.UniversalClient, capacity int) *RedisCache {
	return &RedisCache{rdb: rdb, capacity: int64(capacity)}
}

func redisKey(channelID string) string { return redisKeyPrefix + channelID }

// Put adds the snapshot scored by its sequence number and trims the set to
// capacity. Re-inserting an existing sequence refreshes the member in place.
func (c *RedisCache) Put(ctx context.Context, m domain.Message) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	key := redisKey(m.ChannelID)
	if err := c.rdb.ZAdd(ctx, key, redis.Z{
		Score:  float64(m.SequenceNumber),
		Member: string(raw),
	}).Err(); err != nil {
		return err
	}
	if c.capacity > 0 {
		// Keep only the highest-scored capacity entries.
		if err := c.rdb.ZRemRangeByRank(ctx, key, 0, -(c.capacity + 1)).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Latest returns the highest-sequence snapshots, descending.
func (c *RedisCache) Latest(ctx context.Context, channelID string, limit int) ([]domain.Message, error) {
	raws, err := c.rdb.ZRevRange(ctx, redisKey(channelID), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}
	return decodeMembers(raws), nil
}

// Before returns snapshots scored strictly below seq, descending.
func (c *RedisCache) Before(ctx context.Context, channelID string, seq int64, limit int) ([]domain.Message, error) {
	raws, err := c.rdb.ZRevRangeByScore(ctx, redisKey(channelID), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "(" + strconv.FormatInt(seq, 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}
	return decodeMembers(raws), nil
}

// After returns snapshots scored strictly above seq, ascending.
func (c *RedisCache) After(ctx context.Context, channelID string, seq int64, limit int) ([]domain.Message, error) {
	raws, err := c.rdb.ZRangeByScore(ctx, redisKey(channelID), &redis.ZRangeBy{
		Min:   "(" + strconv.FormatInt(seq, 10),
		Max:   "+inf",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}
	return decodeMembers(raws), nil
}

// decodeMembers unmarshals ZSET members, dropping any that fail to decode.
// A corrupt member degrades to a smaller cache hit; the durable log covers
// the remainder.
func decodeMembers(raws []string) []domain.Message {
	out := make([]domain.Message, 0, len(raws))
	for _, raw := range raws {
		var m domain.Message
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			log.Warn().Err(err).Msg("cache: dropping undecodable entry")
			continue
		}
		out = append(out, m)
	}
	return out
}
