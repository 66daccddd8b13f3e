// Package profilecache provides Redis-backed caching for backend profile reads.
package profilecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/dubspace/dubspace-core/internal/domain"
)

var cacheHitRecorder = func(kind string, hit bool) {}

// RegisterHitRecorder allows external packages to observe cache hits and misses.
func RegisterHitRecorder(recorder func(kind string, hit bool)) {
	if recorder == nil {
		cacheHitRecorder = func(string, bool) {}
		return
	}

	cacheHitRecorder = recorder
}

// Cache keeps short-lived copies of backend profile reads. Profile-level
// entries and balance entries have independent TTLs: the balance changes
// more often and tolerates less staleness.
type Cache struct {
	client     *redis.Client
	profileTTL time.Duration
	balanceTTL time.Duration
}

// New constructs a profile cache backed by the provided Redis client.
func New(client *redis.Client, profileTTL, balanceTTL time.Duration) *Cache {
	return &Cache{
		client:     client,
		profileTTL: profileTTL,
		balanceTTL: balanceTTL,
	}
}

// GetProfile fetches a cached profile snapshot if it exists.
func (c *Cache) GetProfile(ctx context.Context, accountID string) (*domain.ProfileSnapshot, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}

	data, err := c.client.Get(ctx, profileKey(accountID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			cacheHitRecorder("profile", false)
			return nil, nil
		}
		return nil, fmt.Errorf("get cached profile: %w", err)
	}

	var snapshot domain.ProfileSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("decode cached profile: %w", err)
	}

	cacheHitRecorder("profile", true)
	return &snapshot, nil
}

// SetProfile stores the snapshot under the profile TTL.
func (c *Cache) SetProfile(ctx context.Context, snapshot *domain.ProfileSnapshot) error {
	if c == nil || c.client == nil || snapshot == nil {
		return nil
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode profile for cache: %w", err)
	}

	if err := c.client.Set(ctx, profileKey(snapshot.AccountID), payload, c.profileTTL).Err(); err != nil {
		return fmt.Errorf("set cached profile: %w", err)
	}

	return nil
}

// GetBalance fetches the cached balance, returning found=false on a miss.
func (c *Cache) GetBalance(ctx context.Context, accountID string) (int64, bool, error) {
	if c == nil || c.client == nil {
		return 0, false, nil
	}

	data, err := c.client.Get(ctx, balanceKey(accountID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			cacheHitRecorder("balance", false)
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("get cached balance: %w", err)
	}

	balance, err := strconv.ParseInt(data, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("decode cached balance: %w", err)
	}

	cacheHitRecorder("balance", true)
	return balance, true, nil
}

// SetBalance stores the balance under the shorter balance TTL.
func (c *Cache) SetBalance(ctx context.Context, accountID string, balance int64) error {
	if c == nil || c.client == nil {
		return nil
	}

	if err := c.client.Set(ctx, balanceKey(accountID), strconv.FormatInt(balance, 10), c.balanceTTL).Err(); err != nil {
		return fmt.Errorf("set cached balance: %w", err)
	}

	return nil
}

// Invalidate removes both the profile and balance entries for the account.
func (c *Cache) Invalidate(ctx context.Context, accountID string) error {
	if c == nil || c.client == nil {
		return nil
	}

	if err := c.client.Del(ctx, profileKey(accountID), balanceKey(accountID)).Err(); err != nil {
		return fmt.Errorf("delete cached profile: %w", err)
	}

	return nil
}

// InvalidateBalance removes only the balance entry, forcing a fresh read
// after a coin mutation.
func (c *Cache) InvalidateBalance(ctx context.Context, accountID string) error {
	if c == nil || c.client == nil {
		return nil
	}

	if err := c.client.Del(ctx, balanceKey(accountID)).Err(); err != nil {
		return fmt.Errorf("delete cached balance: %w", err)
	}

	return nil
}

func profileKey(accountID string) string {
	return "profile:" + accountID
}

func balanceKey(accountID string) string {
	return "tcoin:" + accountID
}
