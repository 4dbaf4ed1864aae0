package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/velomarket/listing-engine/internal/repository"
)

const dedupKeyPrefix = "notify-once:"

type notificationDedup struct {
	client *redis.Client
}

func NewNotificationDedup(client *redis.Client) repository.NotificationDedup {
	return &notificationDedup{client: client}
}

// MarkOnce claims the key with SETNX. The first caller within the TTL
// window gets true, everyone else false, which makes tiered expiration
// notices exactly-once even across overlapping sweep processes.
func (d *notificationDedup) MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := d.client.SetNX(ctx, dedupKeyPrefix+key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim notification key %s: %w", key, err)
	}
	return ok, nil
}
