package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis shares cached days between processes. Expiry is left to Redis.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis creates a Redis backend. Keys are "<prefix>day:<date>".
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "salonbot:"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(date string) string {
	return r.prefix + "day:" + date
}

func (r *Redis) Get(ctx context.Context, date string) (*Entry, bool) {
	val, err := r.client.Get(ctx, r.key(date)).Result()
	if err != nil {
		return nil, false
	}
	var e Entry
	if err := json.Unmarshal([]byte(val), &e); err != nil {
		return nil, false
	}
	return &e, true
}

func (r *Redis) Set(ctx context.Context, date string, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, r.key(date), data, ttl).Err()
}

func (r *Redis) Delete(ctx context.Context, date string) error {
	return r.client.Del(ctx, r.key(date)).Err()
}

// Sweep is a no-op: Redis evicts expired keys on its own.
func (r *Redis) Sweep(context.Context, time.Time) int {
	return 0
}
