package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
)

// RedisStore backs the Quota Tracker's counters with a shared cache so
// multiple core processes observe the same per-platform budget, per spec
// §4.6's "this is a capability of the store, not a protocol change."
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "quota"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) key(platform models.Platform, window time.Duration) string {
	bucket := time.Now().Truncate(window).Unix()
	return fmt.Sprintf("%s:%s:%d", r.prefix, platform, bucket)
}

func (r *RedisStore) Increment(ctx context.Context, platform models.Platform, window time.Duration, cost int64) (int64, time.Time, error) {
	key := r.key(platform, window)
	pipe := r.client.TxPipeline()
	incr := pipe.IncrBy(ctx, key, cost)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, fmt.Errorf("quota: redis increment: %w", err)
	}
	resetAt := time.Now().Truncate(window).Add(window)
	return incr.Val(), resetAt, nil
}

func (r *RedisStore) Peek(ctx context.Context, platform models.Platform, window time.Duration) (int64, time.Time, error) {
	key := r.key(platform, window)
	val, err := r.client.Get(ctx, key).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, time.Now().Truncate(window).Add(window), nil
		}
		return 0, time.Time{}, fmt.Errorf("quota: redis peek: %w", err)
	}
	resetAt := time.Now().Truncate(window).Add(window)
	return val, resetAt, nil
}
