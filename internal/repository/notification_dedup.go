package repository

import (
	"context"
	"time"
)

// NotificationDedup guards one-shot notifications. MarkOnce returns true
// exactly once per key within the TTL window, so overlapping sweep runs
// (or restarts within the same hour) cannot double-fire a tier notice.
type NotificationDedup interface {
	MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
}
