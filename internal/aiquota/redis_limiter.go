package aiquota

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter implements Limiter with a per-day counter in Redis, so the
// allowance is shared across devices signed into the same account.
type RedisLimiter struct {
	client *redis.Client
	log    *slog.Logger
	now    func() time.Time
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter creates a Redis-backed Limiter implementation.
func NewRedisLimiter(client *redis.Client, log *slog.Logger) *RedisLimiter {
	if log == nil {
		log = slog.Default()
	}

	return &RedisLimiter{
		client: client,
		log:    log,
		now:    time.Now,
	}
}

// Consume spends one unit of the account's daily allowance. When the limit is
// already reached the counter is left untouched and Allowed is false.
func (l *RedisLimiter) Consume(ctx context.Context, accountID string, limit int) (*Quota, error) {
	if l.client == nil {
		return nil, errors.New("redis client is not configured for quota tracking")
	}

	now := l.now()
	resetAt := nextMidnightUTC(now)

	if limit <= 0 {
		return &Quota{Allowed: false, Remaining: 0, ResetAt: resetAt}, nil
	}

	key := "aiquota:" + accountID + ":" + dayStamp(now)

	pipe := l.client.TxPipeline()
	countCmd := pipe.Incr(ctx, key)
	pipe.ExpireAt(ctx, key, resetAt)

	if _, err := pipe.Exec(ctx); err != nil {
		if l.log != nil {
			l.log.Error("quota pipeline failed", slog.String("account_id", accountID), slog.Any("error", err))
		}
		return nil, err
	}

	count := countCmd.Val()
	if count > int64(limit) {
		// Undo the speculative increment so a retry after the reset is
		// not penalized.
		if err := l.client.Decr(ctx, key).Err(); err != nil && l.log != nil {
			l.log.Warn("quota rollback failed", slog.String("account_id", accountID), slog.Any("error", err))
		}

		return &Quota{Allowed: false, Remaining: 0, ResetAt: resetAt}, nil
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return &Quota{Allowed: true, Remaining: remaining, ResetAt: resetAt}, nil
}
