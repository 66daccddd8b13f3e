package storage

import (
	"context"
	"io"
	"log/slog"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestRedisStore_SetAndGet(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	store := NewRedisStore(client, testLogger())
	ctx := context.Background()

	err := store.Set(ctx, EntitlementKey("acc-1"), `{"level":"premium"}`)
	assert.NoError(t, err)

	value, err := store.Get(ctx, EntitlementKey("acc-1"))
	assert.NoError(t, err)
	assert.Equal(t, `{"level":"premium"}`, value)
}

func TestRedisStore_GetNotFound(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	store := NewRedisStore(client, testLogger())

	value, err := store.Get(context.Background(), BalanceKey("missing"))
	assert.Empty(t, value)
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestRedisStore_Remove(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	store := NewRedisStore(client, testLogger())
	ctx := context.Background()

	err := store.Set(ctx, AppLanguageKey, "zh")
	assert.NoError(t, err)

	err = store.Remove(ctx, AppLanguageKey)
	assert.NoError(t, err)

	value, err := store.Get(ctx, AppLanguageKey)
	assert.Empty(t, value)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestRedisStore_RemoveMissingKey(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	store := NewRedisStore(client, testLogger())

	err := store.Remove(context.Background(), TransactionsKey("nobody"))
	assert.NoError(t, err)
}

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

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
