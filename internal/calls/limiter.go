package calls

import (
	"context"
	"time"

	"support-gateway/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// InitiationLimiter caps concurrent ringing calls per caller. A nil limiter
// means unlimited.
type InitiationLimiter interface {
	Acquire(ctx context.Context, callerID string) (bool, error)
	Release(ctx context.Context, callerID string) error
}

// RedisLimiter enforces the cap with the shared redis counter scripts. The
// TTL covers crashed processes that never release.
type RedisLimiter struct {
	rdb   *redis.Client
	limit int
	ttl   time.Duration
}

func NewRedisLimiter(rdb *redis.Client, limit int, ttl time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, limit: limit, ttl: ttl}
}

func capKey(callerID string) string {
	return "callcap:" + callerID
}

func (l *RedisLimiter) Acquire(ctx context.Context, callerID string) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, l.rdb, capKey(callerID), l.limit, l.ttl)
}

func (l *RedisLimiter) Release(ctx context.Context, callerID string) error {
	return utils.ReleaseConcurrencyCap(ctx, l.rdb, capKey(callerID))
}
