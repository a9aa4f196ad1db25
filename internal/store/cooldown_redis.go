package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cooldownKeyPrefix = "cooldown:"

// RedisLedger implements the cooldown Ledger as TTL keys. The refractory
// period maps directly onto key expiry, so expired entries vanish without a
// sweep. Expiry is decided by the Redis server clock; the injected now is
// recorded as the key value for operator inspection only.
type RedisLedger struct {
	rdb    *redis.Client
	period time.Duration
}

// NewRedisLedger builds a ledger over an established Redis client.
func NewRedisLedger(rdb *redis.Client, period time.Duration) *RedisLedger {
	return &RedisLedger{rdb: rdb, period: period}
}

func (l *RedisLedger) IsBlocked(ctx context.Context, identifier string, now time.Time) (bool, error) {
	n, err := l.rdb.Exists(ctx, cooldownKeyPrefix+identifier).Result()
	if err != nil {
		return false, fmt.Errorf("cooldown lookup: %w", err)
	}
	return n > 0, nil
}

func (l *RedisLedger) Stamp(ctx context.Context, identifier string, now time.Time) error {
	err := l.rdb.Set(ctx, cooldownKeyPrefix+identifier, now.UTC().Format(time.RFC3339), l.period).Err()
	if err != nil {
		return fmt.Errorf("cooldown stamp: %w", err)
	}
	return nil
}
