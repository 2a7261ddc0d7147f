package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisCooldowns shares cooldowns between scanner instances. Each cooldown is
// a key set with NX and a TTL equal to the window, so expiry needs no sweep.
type RedisCooldowns struct {
	client redis.Cmdable
	prefix string
}

// NewRedisCooldowns creates a store on client with the given key prefix
func NewRedisCooldowns(client redis.Cmdable, prefix string) *RedisCooldowns {
	if prefix == "" {
		prefix = "pumpradar:cooldown:"
	}
	return &RedisCooldowns{client: client, prefix: prefix}
}

func (r *RedisCooldowns) key(k Key) string {
	return r.prefix + k.String()
}

// TryAcquire implements CooldownStore
func (r *RedisCooldowns) TryAcquire(ctx context.Context, key Key, now time.Time, window time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.key(key), now.UnixMilli(), window).Result()
	if err != nil {
		return false, fmt.Errorf("cooldown %s: %w", key, err)
	}
	return ok, nil
}
