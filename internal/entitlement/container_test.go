package entitlement

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dubspace/dubspace-core/internal/domain"
	"github.com/dubspace/dubspace-core/internal/errors"
	"github.com/dubspace/dubspace-core/internal/storage"
)

func TestContainer_SubscribeRequiresAccount(t *testing.T) {
	c := newTestContainer(storage.NewMemoryStore())

	err := c.Subscribe(context.Background(), domain.LevelPremium)
	assert.Equal(t, "E100", appErrorCode(t, err))
}

func TestContainer_Subscribe(t *testing.T) {
	store := storage.NewMemoryStore()
	c := newTestContainer(store)
	ctx := context.Background()

	require.NoError(t, c.SetAccount(ctx, "acc-1"))
	require.NoError(t, c.Subscribe(ctx, domain.LevelPremium))

	state := c.State()
	assert.Equal(t, domain.LevelPremium, state.Level)
	assert.True(t, state.AutoRenew)
	assert.True(t, strings.HasPrefix(state.SubscriptionID, "sub_"))
	require.NotNil(t, state.ExpiresAt)
	assert.Equal(t, 30, c.RemainingDays())
	assert.True(t, c.IsActive())

	_, err := store.Get(ctx, storage.EntitlementKey("acc-1"))
	assert.NoError(t, err)
}

func TestContainer_SubscribeRejectsInvalidLevel(t *testing.T) {
	c := newTestContainer(storage.NewMemoryStore())
	ctx := context.Background()

	require.NoError(t, c.SetAccount(ctx, "acc-1"))

	for _, level := range []domain.Level{domain.LevelNone, domain.Level("gold")} {
		err := c.Subscribe(ctx, level)
		assert.Equal(t, "E110", appErrorCode(t, err))
	}
	assert.Equal(t, domain.LevelNone, c.State().Level)
}

func TestContainer_RemainingDays(t *testing.T) {
	now := time.Date(2026, time.March, 10, 15, 30, 0, 0, time.Local)

	testCases := []struct {
		name       string
		expiry     time.Time
		wantDays   int
		wantActive bool
	}{
		{
			name:       "ten days ahead",
			expiry:     now.AddDate(0, 0, 10),
			wantDays:   10,
			wantActive: true,
		},
		{
			name:       "expired yesterday",
			expiry:     now.AddDate(0, 0, -1),
			wantDays:   0,
			wantActive: false,
		},
		{
			name:       "later today",
			expiry:     now.Add(2 * time.Hour),
			wantDays:   0,
			wantActive: false,
		},
		{
			name:       "early tomorrow counts as a full day",
			expiry:     now.AddDate(0, 0, 1).Add(-14 * time.Hour),
			wantDays:   1,
			wantActive: true,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			record := domain.Entitlement{
				Level:     domain.LevelPremium,
				ExpiresAt: &tc.expiry,
			}

			assert.Equal(t, tc.wantDays, record.RemainingDays(now))
			assert.Equal(t, tc.wantActive, record.IsActive(now))
		})
	}
}

func TestContainer_CancelKeepsAccess(t *testing.T) {
	c := newTestContainer(storage.NewMemoryStore())
	ctx := context.Background()

	require.NoError(t, c.SetAccount(ctx, "acc-1"))
	require.NoError(t, c.Subscribe(ctx, domain.LevelPremium))

	before := c.State()
	require.NoError(t, c.CancelSubscription(ctx))

	after := c.State()
	assert.False(t, after.AutoRenew)
	assert.Equal(t, before.Level, after.Level)
	assert.Equal(t, before.ExpiresAt, after.ExpiresAt)
	assert.Equal(t, before.SubscriptionID, after.SubscriptionID)
	assert.True(t, c.IsActive())
}

func TestContainer_CancelWithoutSubscription(t *testing.T) {
	c := newTestContainer(storage.NewMemoryStore())
	ctx := context.Background()

	require.NoError(t, c.SetAccount(ctx, "acc-1"))

	err := c.CancelSubscription(ctx)
	assert.Equal(t, "E103", appErrorCode(t, err))
}

func TestContainer_ToggleAutoRenewRequiresActive(t *testing.T) {
	c := newTestContainer(storage.NewMemoryStore())
	ctx := context.Background()

	require.NoError(t, c.SetAccount(ctx, "acc-1"))

	err := c.ToggleAutoRenew(ctx)
	assert.Equal(t, "E103", appErrorCode(t, err))

	require.NoError(t, c.Subscribe(ctx, domain.LevelBasic))
	require.NoError(t, c.ToggleAutoRenew(ctx))
	assert.False(t, c.State().AutoRenew)

	require.NoError(t, c.ToggleAutoRenew(ctx))
	assert.True(t, c.State().AutoRenew)
}

func TestContainer_PersistenceRoundTrip(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	first := newTestContainer(store)
	require.NoError(t, first.SetAccount(ctx, "acc-1"))
	require.NoError(t, first.Subscribe(ctx, domain.LevelPremium))
	saved := first.State()

	// fresh container simulates an app restart
	second := newTestContainer(store)
	require.NoError(t, second.SetAccount(ctx, "acc-1"))

	loaded := second.State()
	assert.Equal(t, saved.Level, loaded.Level)
	assert.Equal(t, saved.AutoRenew, loaded.AutoRenew)
	assert.Equal(t, saved.SubscriptionID, loaded.SubscriptionID)
	require.NotNil(t, loaded.ExpiresAt)
	assert.True(t, saved.ExpiresAt.Equal(*loaded.ExpiresAt))
}

func TestContainer_AccountSwitchClearsState(t *testing.T) {
	store := storage.NewMemoryStore()
	c := newTestContainer(store)
	ctx := context.Background()

	require.NoError(t, c.SetAccount(ctx, "acc-1"))
	require.NoError(t, c.Subscribe(ctx, domain.LevelPremium))

	require.NoError(t, c.SetAccount(ctx, "acc-2"))
	assert.Equal(t, domain.EmptyEntitlement(), c.State())
	assert.False(t, c.IsActive())
}

func TestContainer_StaleLoadDiscarded(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	seed := newTestContainer(store)
	require.NoError(t, seed.SetAccount(ctx, "acc-1"))
	require.NoError(t, seed.Subscribe(ctx, domain.LevelPremium))

	gate := &gateStore{Store: store, release: make(chan struct{})}
	c := newTestContainer(gate)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = c.SetAccount(ctx, "acc-1")
	}()

	// sign out while the load for acc-1 is still in flight
	gate.waitUntilBlocked()
	require.NoError(t, c.SignOut(ctx))

	close(gate.release)
	wg.Wait()

	assert.Equal(t, domain.EmptyEntitlement(), c.State())
	assert.False(t, c.Loading())
}

func TestContainer_SignOutRemovesPersistedRecord(t *testing.T) {
	store := storage.NewMemoryStore()
	c := newTestContainer(store)
	ctx := context.Background()

	require.NoError(t, c.SetAccount(ctx, "acc-1"))
	require.NoError(t, c.Subscribe(ctx, domain.LevelBasic))
	require.NoError(t, c.SignOut(ctx))

	_, err := store.Get(ctx, storage.EntitlementKey("acc-1"))
	assert.ErrorIs(t, err, storage.ErrKeyNotFound)
}

func newTestContainer(store storage.Store) *Container {
	return NewContainer(store, 30, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func appErrorCode(t *testing.T, err error) string {
	t.Helper()

	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %v", err)
	}

	return appErr.Code
}

// gateStore blocks reads until release is closed so tests can interleave an
// account switch with an in-flight load.
type gateStore struct {
	storage.Store
	release chan struct{}

	mu      sync.Mutex
	blocked bool
}

func (s *gateStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	s.blocked = true
	s.mu.Unlock()

	<-s.release
	return s.Store.Get(ctx, key)
}

func (s *gateStore) waitUntilBlocked() {
	for {
		s.mu.Lock()
		blocked := s.blocked
		s.mu.Unlock()
		if blocked {
			return
		}
		time.Sleep(time.Millisecond)
	}
}
