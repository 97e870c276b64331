package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/reactive-engine/internal/clock"
	"github.com/spec-kit/reactive-engine/internal/domain"
)

// redisCommsLog keeps one sorted set per recipient, scored by dispatch time
// in milliseconds. Expired members are trimmed on every append and the key
// itself expires once the recipient has been quiet for a full retention window.
type redisCommsLog struct {
	client    redis.UniversalClient
	clock     clock.Clock
	retention time.Duration
	prefix    string
}

// NewRedisCommsLog creates a log shared between service instances.
func NewRedisCommsLog(client redis.UniversalClient, c clock.Clock, retention time.Duration, prefix string) CommsLogRepository {
	if c == nil {
		c = clock.Real()
	}
	if retention <= 0 {
		retention = DefaultCommsRetention
	}
	return &redisCommsLog{client: client, clock: c, retention: retention, prefix: prefix}
}

func (l *redisCommsLog) key(recipient string) string {
	return l.prefix + "comms:" + recipient
}

func (l *redisCommsLog) Append(ctx context.Context, entry *domain.CommEntry) error {
	stampCommEntry(entry, l.clock.Now())
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode comm entry: %w", err)
	}

	key := l.key(entry.Recipient)
	cutoff := l.clock.Now().Add(-l.retention).UnixMilli()
	pipe := l.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(entry.DispatchedAt.UnixMilli()), Member: payload})
	pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10))
	pipe.Expire(ctx, key, l.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append comm entry: %w", err)
	}
	return nil
}

func (l *redisCommsLog) Since(ctx context.Context, recipient string, since time.Time) ([]domain.CommEntry, error) {
	members, err := l.client.ZRangeByScore(ctx, l.key(recipient), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("read comm entries: %w", err)
	}
	out := make([]domain.CommEntry, 0, len(members))
	for _, member := range members {
		var entry domain.CommEntry
		if err := json.Unmarshal([]byte(member), &entry); err != nil {
			return nil, fmt.Errorf("decode comm entry: %w", err)
		}
		out = append(out, entry)
	}
	return out, nil
}

// Purge is a no-op: Redis trims on append and expires idle recipients.
func (l *redisCommsLog) Purge(context.Context) (int, error) {
	return 0, nil
}
