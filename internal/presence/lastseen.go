package presence

import (
	"context"
	"fmt"
	"time"

	"support-gateway/internal/auth"

	"github.com/redis/go-redis/v9"
)

// LastSeen keeps advisory last-seen timestamps in redis. It is not
// presence: the in-memory registry stays authoritative and is rebuilt from
// scratch on reconnect. The markers exist for the push layer and support
// tooling to tell "offline for a minute" from "offline for a week".
type LastSeen struct {
	rdb     *redis.Client
	ttl     time.Duration
	timeout time.Duration
	clock   func() time.Time
}

func NewLastSeen(rdb *redis.Client, ttl time.Duration) *LastSeen {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &LastSeen{
		rdb:     rdb,
		ttl:     ttl,
		timeout: 2 * time.Second,
		clock:   time.Now,
	}
}

func lastSeenKey(identity string, role auth.Role) string {
	return fmt.Sprintf("lastseen:%s:%s", role, identity)
}

func (l *LastSeen) Touch(identity string, role auth.Role) error {
	if l.rdb == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	ts := l.clock().UTC().Format(time.RFC3339)
	return l.rdb.Set(ctx, lastSeenKey(identity, role), ts, l.ttl).Err()
}

// Get returns the last-seen timestamp, or zero time when unknown.
func (l *LastSeen) Get(ctx context.Context, identity string, role auth.Role) (time.Time, error) {
	if l.rdb == nil {
		return time.Time{}, nil
	}
	v, err := l.rdb.Get(ctx, lastSeenKey(identity, role)).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, v)
}
