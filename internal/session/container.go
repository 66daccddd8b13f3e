// Package session mirrors the canonical account record alongside local
// preferences and the AI usage counter.
package session

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dubspace/dubspace-core/internal/domain"
	"github.com/dubspace/dubspace-core/internal/errors"
	"github.com/dubspace/dubspace-core/internal/storage"
)

// State is a read-only view of the container's current contents.
type State struct {
	IsVIP        bool
	VIPExpiry    *time.Time
	CoinBalance  int64
	AIUsageCount int
	AIUsageLimit int
	Preferences  domain.Preferences
}

// PreferenceUpdate carries a partial preference change; nil fields are left
// untouched.
type PreferenceUpdate struct {
	Language           *string
	Theme              *string
	AutoTranslate      *bool
	DefaultDubLanguage *string
}

// persistedState is the JSON layout stored under the session key.
type persistedState struct {
	IsVIP        bool               `json:"is_vip"`
	VIPExpiry    *time.Time         `json:"vip_expiry,omitempty"`
	CoinBalance  int64              `json:"coin_balance"`
	AIUsageCount int                `json:"ai_usage_count"`
	Preferences  domain.Preferences `json:"preferences"`
	MutatedAt    time.Time          `json:"mutated_at"`
}

// Container is the local mirror of the remote account record. Snapshots
// applied through ApplySnapshot win over mirrored fields, but a snapshot
// fetched before the latest local mutation is rejected instead of silently
// clobbering it.
type Container struct {
	store storage.Store
	log   *slog.Logger
	now   func() time.Time

	mu           sync.Mutex
	accountID    string
	isVIP        bool
	vipExpiry    *time.Time
	coinBalance  int64
	aiUsageCount int
	aiUsageLimit int
	preferences  domain.Preferences
	mutatedAt    time.Time
	loading      bool
	generation   uint64
}

// NewContainer constructs a session container with the given daily AI limit.
func NewContainer(store storage.Store, aiUsageLimit int, log *slog.Logger) *Container {
	if log == nil {
		log = slog.Default()
	}

	return &Container{
		store:        store,
		log:          log,
		now:          time.Now,
		aiUsageLimit: aiUsageLimit,
		preferences:  domain.DefaultPreferences(),
	}
}

// SetAccount binds the container to a new account, resetting state before the
// persisted mirror loads.
func (c *Container) SetAccount(ctx context.Context, accountID string) error {
	c.mu.Lock()
	c.accountID = accountID
	c.resetLocked()
	c.generation++
	gen := c.generation
	c.loading = accountID != ""
	c.mu.Unlock()

	if accountID == "" {
		return nil
	}

	raw, err := c.store.Get(ctx, storage.SessionKey(accountID))

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return nil
	}
	c.loading = false

	if err != nil {
		if stderrors.Is(err, storage.ErrKeyNotFound) {
			return nil
		}

		c.log.Error("failed to load session state", "account_id", accountID, "error", err)
		return errors.NewStorageError(err)
	}

	var stored persistedState
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		c.log.Error("failed to decode session state", "account_id", accountID, "error", err)
		return errors.NewStorageError(err)
	}

	c.isVIP = stored.IsVIP
	c.vipExpiry = stored.VIPExpiry
	c.coinBalance = stored.CoinBalance
	c.aiUsageCount = stored.AIUsageCount
	c.preferences = stored.Preferences
	c.mutatedAt = stored.MutatedAt
	return nil
}

// ApplySnapshot reconciles the container with a canonical backend snapshot.
// It returns false when the snapshot is older than the last local mutation
// and was therefore discarded.
func (c *Container) ApplySnapshot(ctx context.Context, snapshot domain.ProfileSnapshot) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accountID == "" {
		return false, errors.NewNotAuthenticatedError()
	}

	if snapshot.FetchedAt.Before(c.mutatedAt) {
		c.log.Debug("discarding stale profile snapshot",
			"account_id", c.accountID,
			"fetched_at", snapshot.FetchedAt,
			"mutated_at", c.mutatedAt)
		return false, nil
	}

	next := c.snapshotLocked()
	next.IsVIP = snapshot.IsVIP
	next.VIPExpiry = snapshot.VIPExpiry
	next.CoinBalance = snapshot.TCoinBalance
	next.AIUsageCount = snapshot.AIUsage
	if snapshot.Preferences != nil {
		next.Preferences = *snapshot.Preferences
	}
	next.MutatedAt = snapshot.FetchedAt

	if err := c.persistLocked(ctx, next); err != nil {
		return false, err
	}

	c.applyLocked(next)
	return true, nil
}

// IncrementAIUsage bumps the usage counter by one.
func (c *Container) IncrementAIUsage(ctx context.Context) error {
	return c.mutate(ctx, func(s *persistedState) {
		s.AIUsageCount++
	})
}

// ResetAIUsage zeroes the usage counter. The daily reset job and manual
// resets both go through here.
func (c *Container) ResetAIUsage(ctx context.Context) error {
	return c.mutate(ctx, func(s *persistedState) {
		s.AIUsageCount = 0
	})
}

// UpdatePreferences merges the non-nil fields of update into the preference set.
func (c *Container) UpdatePreferences(ctx context.Context, update PreferenceUpdate) error {
	return c.mutate(ctx, func(s *persistedState) {
		if update.Language != nil {
			s.Preferences.Language = *update.Language
		}
		if update.Theme != nil {
			s.Preferences.Theme = *update.Theme
		}
		if update.AutoTranslate != nil {
			s.Preferences.AutoTranslate = *update.AutoTranslate
		}
		if update.DefaultDubLanguage != nil {
			s.Preferences.DefaultDubLanguage = *update.DefaultDubLanguage
		}
	})
}

// SetVIPStatus updates the mirrored VIP flag and expiry.
func (c *Container) SetVIPStatus(ctx context.Context, isVIP bool, expiry *time.Time) error {
	return c.mutate(ctx, func(s *persistedState) {
		s.IsVIP = isVIP
		s.VIPExpiry = expiry
	})
}

// AdjustCoinBalance shifts the mirrored coin balance by delta.
func (c *Container) AdjustCoinBalance(ctx context.Context, delta int64) error {
	return c.mutate(ctx, func(s *persistedState) {
		s.CoinBalance += delta
	})
}

// CanUseAI reports whether another AI-assistant request is allowed. VIP
// accounts bypass the daily limit.
func (c *Container) CanUseAI() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.isVIP || c.aiUsageCount < c.aiUsageLimit
}

// State returns a copy of the current container contents.
func (c *Container) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return State{
		IsVIP:        c.isVIP,
		VIPExpiry:    c.vipExpiry,
		CoinBalance:  c.coinBalance,
		AIUsageCount: c.aiUsageCount,
		AIUsageLimit: c.aiUsageLimit,
		Preferences:  c.preferences,
	}
}

// AccountID returns the currently bound account, or an empty string.
func (c *Container) AccountID() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.accountID
}

// Loading reports whether the persisted mirror is still being loaded.
func (c *Container) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.loading
}

// SignOut clears the mirror and removes the persisted key.
func (c *Container) SignOut(ctx context.Context) error {
	c.mu.Lock()
	accountID := c.accountID
	c.accountID = ""
	c.resetLocked()
	c.generation++
	c.loading = false
	c.mu.Unlock()

	if accountID == "" {
		return nil
	}

	if err := c.store.Remove(ctx, storage.SessionKey(accountID)); err != nil {
		c.log.Error("failed to clear session state", "account_id", accountID, "error", err)
		return errors.NewStorageError(err)
	}

	return nil
}

func (c *Container) mutate(ctx context.Context, apply func(*persistedState)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accountID == "" {
		return errors.NewNotAuthenticatedError()
	}

	next := c.snapshotLocked()
	apply(&next)
	next.MutatedAt = c.now()

	if err := c.persistLocked(ctx, next); err != nil {
		return err
	}

	c.applyLocked(next)
	return nil
}

func (c *Container) snapshotLocked() persistedState {
	return persistedState{
		IsVIP:        c.isVIP,
		VIPExpiry:    c.vipExpiry,
		CoinBalance:  c.coinBalance,
		AIUsageCount: c.aiUsageCount,
		Preferences:  c.preferences,
		MutatedAt:    c.mutatedAt,
	}
}

func (c *Container) applyLocked(s persistedState) {
	c.isVIP = s.IsVIP
	c.vipExpiry = s.VIPExpiry
	c.coinBalance = s.CoinBalance
	c.aiUsageCount = s.AIUsageCount
	c.preferences = s.Preferences
	c.mutatedAt = s.MutatedAt
}

func (c *Container) resetLocked() {
	c.isVIP = false
	c.vipExpiry = nil
	c.coinBalance = 0
	c.aiUsageCount = 0
	c.preferences = domain.DefaultPreferences()
	c.mutatedAt = time.Time{}
}

func (c *Container) persistLocked(ctx context.Context, s persistedState) error {
	data, err := json.Marshal(s)
	if err != nil {
		return errors.NewStorageError(err)
	}

	if err := c.store.Set(ctx, storage.SessionKey(c.accountID), string(data)); err != nil {
		c.log.Error("failed to persist session state", "account_id", c.accountID, "error", err)
		return errors.NewStorageError(err)
	}

	return nil
}
