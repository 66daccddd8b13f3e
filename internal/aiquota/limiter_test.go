package aiquota

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cleanup := func() {
		_ = client.Close()
		mr.Close()
	}

	return client, cleanup
}

func TestRedisLimiter_AllowsWithinLimit(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	limiter := NewRedisLimiter(client, testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		quota, err := limiter.Consume(ctx, "acc-1", 5)
		require.NoError(t, err)
		assert.True(t, quota.Allowed)
		assert.Equal(t, 5-(i+1), quota.Remaining)
	}
}

func TestRedisLimiter_BlocksWhenExhausted(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	limiter := NewRedisLimiter(client, testLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		quota, err := limiter.Consume(ctx, "acc-1", 2)
		require.NoError(t, err)
		assert.True(t, quota.Allowed)
	}

	quota, err := limiter.Consume(ctx, "acc-1", 2)
	require.NoError(t, err)
	assert.False(t, quota.Allowed)
	assert.Equal(t, 0, quota.Remaining)

	// The denied attempt was rolled back, so a higher limit has one unit free.
	quota, err = limiter.Consume(ctx, "acc-1", 3)
	require.NoError(t, err)
	assert.True(t, quota.Allowed)
}

func TestRedisLimiter_AccountsAreIndependent(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	limiter := NewRedisLimiter(client, testLogger())
	ctx := context.Background()

	quota, err := limiter.Consume(ctx, "acc-1", 1)
	require.NoError(t, err)
	assert.True(t, quota.Allowed)

	quota, err = limiter.Consume(ctx, "acc-1", 1)
	require.NoError(t, err)
	assert.False(t, quota.Allowed)

	quota, err = limiter.Consume(ctx, "acc-2", 1)
	require.NoError(t, err)
	assert.True(t, quota.Allowed)
}

func TestRedisLimiter_ResetsAtMidnight(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	limiter := NewRedisLimiter(client, testLogger())
	limiter.now = func() time.Time {
		return time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)
	}
	ctx := context.Background()

	quota, err := limiter.Consume(ctx, "acc-1", 1)
	require.NoError(t, err)
	assert.True(t, quota.Allowed)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), quota.ResetAt)

	quota, err = limiter.Consume(ctx, "acc-1", 1)
	require.NoError(t, err)
	assert.False(t, quota.Allowed)

	// The next day uses a fresh counter.
	limiter.now = func() time.Time {
		return time.Date(2026, 3, 15, 0, 1, 0, 0, time.UTC)
	}

	quota, err = limiter.Consume(ctx, "acc-1", 1)
	require.NoError(t, err)
	assert.True(t, quota.Allowed)
}

func TestMemoryLimiter_DayRollover(t *testing.T) {
	limiter := NewMemoryLimiter(testLogger())
	limiter.now = func() time.Time {
		return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	}
	ctx := context.Background()

	quota, err := limiter.Consume(ctx, "acc-1", 1)
	require.NoError(t, err)
	assert.True(t, quota.Allowed)

	quota, err = limiter.Consume(ctx, "acc-1", 1)
	require.NoError(t, err)
	assert.False(t, quota.Allowed)

	limiter.now = func() time.Time {
		return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	}

	quota, err = limiter.Consume(ctx, "acc-1", 1)
	require.NoError(t, err)
	assert.True(t, quota.Allowed)
}

func TestMemoryLimiter_CleanupDropsStaleCounters(t *testing.T) {
	limiter := NewMemoryLimiter(testLogger())
	limiter.now = func() time.Time {
		return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	}
	ctx := context.Background()

	_, err := limiter.Consume(ctx, "acc-1", 5)
	require.NoError(t, err)

	limiter.now = func() time.Time {
		return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	}
	limiter.Cleanup()

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	assert.Empty(t, limiter.counters)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
