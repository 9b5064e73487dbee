package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultWatermarkPrefix namespaces watermark keys in Redis.
const DefaultWatermarkPrefix = "fulfil:watermark:"

// RedisWatermarks keeps alert watermarks in Redis. A claim is a SET NX
// with the cooldown as expiry, so the window starts at the alert that won
// the claim and Redis drops the key when it ends.
type RedisWatermarks struct {
	client redis.Cmdable
	prefix string
}

// NewRedisWatermarks wraps an existing client.
func NewRedisWatermarks(client redis.Cmdable, prefix string) *RedisWatermarks {
	if prefix == "" {
		prefix = DefaultWatermarkPrefix
	}
	return &RedisWatermarks{client: client, prefix: prefix}
}

// DialRedisWatermarks connects to addr and pings it.
func DialRedisWatermarks(ctx context.Context, addr, password string, db int) (*RedisWatermarks, *redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connect to redis %s: %w", addr, err)
	}
	return NewRedisWatermarks(client, ""), client, nil
}

// ClaimWatermark implements rules.Watermarks. now is stored as the value
// for inspection; expiry is measured by the Redis server clock.
func (w *RedisWatermarks) ClaimWatermark(ctx context.Context, key string, now time.Time, cooldown time.Duration) (bool, error) {
	if cooldown <= 0 {
		return true, nil
	}
	ok, err := w.client.SetNX(ctx, w.prefix+key, now.UTC().Format(time.RFC3339Nano), cooldown).Result()
	if err != nil {
		return false, fmt.Errorf("claim watermark %s: %w", key, err)
	}
	return ok, nil
}
