package sync

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dubspace/dubspace-core/internal/aiquota"
	"github.com/dubspace/dubspace-core/internal/domain"
	"github.com/dubspace/dubspace-core/internal/entitlement"
	"github.com/dubspace/dubspace-core/internal/idempotency"
	"github.com/dubspace/dubspace-core/internal/ledger"
	"github.com/dubspace/dubspace-core/internal/profilecache"
	"github.com/dubspace/dubspace-core/internal/session"
	"github.com/dubspace/dubspace-core/internal/storage"
)

func TestCoordinator_SignInBindsAllContainers(t *testing.T) {
	repo := &mockRepository{}
	coord, parts := newTestCoordinator(t, repo, 3)
	ctx := context.Background()

	repo.On("FindByID", mock.Anything, "acc-1").
		Return(testSnapshot("acc-1", 55), nil).Once()

	account := domain.Account{ID: "acc-1", Email: "a@example.com"}
	require.NoError(t, coord.SignIn(ctx, account))

	assert.Equal(t, "acc-1", parts.session.AccountID())
	assert.Equal(t, int64(55), parts.session.State().CoinBalance)
	repo.AssertExpectations(t)
}

func TestCoordinator_SignOutClearsAllContainers(t *testing.T) {
	repo := &mockRepository{}
	coord, parts := newTestCoordinator(t, repo, 3)
	ctx := context.Background()

	repo.On("FindByID", mock.Anything, "acc-1").
		Return(testSnapshot("acc-1", 55), nil).Once()
	require.NoError(t, coord.SignIn(ctx, domain.Account{ID: "acc-1"}))

	require.NoError(t, coord.SignOut(ctx))

	assert.Empty(t, parts.session.AccountID())
	assert.Zero(t, parts.ledger.Balance())
	assert.False(t, parts.entitlement.IsActive())
}

func TestCoordinator_UseAIFeatureRequiresAccount(t *testing.T) {
	repo := &mockRepository{}
	coord, _ := newTestCoordinator(t, repo, 3)

	_, err := coord.UseAIFeature(context.Background())
	assert.Error(t, err)
}

func TestCoordinator_UseAIFeatureConsumesQuota(t *testing.T) {
	repo := &mockRepository{}
	coord, parts := newTestCoordinator(t, repo, 2)
	ctx := context.Background()

	require.NoError(t, parts.session.SetAccount(ctx, "acc-1"))
	require.NoError(t, parts.entitlement.SetAccount(ctx, "acc-1"))

	for i := 0; i < 2; i++ {
		allowed, err := coord.UseAIFeature(ctx)
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, err := coord.UseAIFeature(ctx)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 2, parts.session.State().AIUsageCount)
}

func TestCoordinator_UseAIFeatureVIPBypassesLimit(t *testing.T) {
	repo := &mockRepository{}
	coord, parts := newTestCoordinator(t, repo, 1)
	ctx := context.Background()

	require.NoError(t, parts.session.SetAccount(ctx, "acc-1"))
	require.NoError(t, parts.entitlement.SetAccount(ctx, "acc-1"))
	require.NoError(t, parts.entitlement.Subscribe(ctx, domain.LevelBasic))

	for i := 0; i < 5; i++ {
		allowed, err := coord.UseAIFeature(ctx)
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	// VIP usage does not count against the daily allowance
	assert.Zero(t, parts.session.State().AIUsageCount)
}

func TestCoordinator_PurchaseCoinsDeduplicatesReceipts(t *testing.T) {
	repo := &mockRepository{}
	coord, parts := newTestCoordinator(t, repo, 3)
	ctx := context.Background()

	require.NoError(t, parts.session.SetAccount(ctx, "acc-1"))
	require.NoError(t, parts.ledger.SetAccount(ctx, "acc-1"))

	repo.On("UpdateFields", mock.Anything, "acc-1", mock.Anything).
		Return(testSnapshot("acc-1", 100), nil)

	credited, err := coord.PurchaseCoins(ctx, 100, "receipt-7")
	require.NoError(t, err)
	assert.True(t, credited)
	assert.Equal(t, int64(100), parts.ledger.Balance())

	// delivering the same receipt again must not credit twice
	credited, err = coord.PurchaseCoins(ctx, 100, "receipt-7")
	require.NoError(t, err)
	assert.False(t, credited)
	assert.Equal(t, int64(100), parts.ledger.Balance())

	credited, err = coord.PurchaseCoins(ctx, 50, "receipt-8")
	require.NoError(t, err)
	assert.True(t, credited)
	assert.Equal(t, int64(150), parts.ledger.Balance())
}

func TestCoordinator_PurchaseCoinsRejectsNonPositiveAmount(t *testing.T) {
	repo := &mockRepository{}
	coord, parts := newTestCoordinator(t, repo, 3)
	ctx := context.Background()

	require.NoError(t, parts.session.SetAccount(ctx, "acc-1"))
	require.NoError(t, parts.ledger.SetAccount(ctx, "acc-1"))

	_, err := coord.PurchaseCoins(ctx, 0, "receipt-9")
	assert.Error(t, err)
	assert.Zero(t, parts.ledger.Balance())
}

type coordinatorParts struct {
	entitlement *entitlement.Container
	ledger      *ledger.Container
	session     *session.Container
}

func newTestCoordinator(t *testing.T, repo *mockRepository, aiLimit int) (*Coordinator, coordinatorParts) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := storage.NewMemoryStore()
	log := testLogger()

	ent := entitlement.NewContainer(store, 30, log)
	led := ledger.NewContainer(store, log)
	sess := session.NewContainer(store, aiLimit, log)

	cache := profilecache.New(client, 5*time.Minute, time.Minute)
	svc := NewService(repo, cache, sess, log)
	quota := aiquota.NewRedisLimiter(client, log)
	idem := idempotency.NewManager(idempotency.NewRedisStore(client, log), log)

	coord := NewCoordinator(CoordinatorDeps{
		Entitlement: ent,
		Ledger:      led,
		Session:     sess,
		SyncService: svc,
		Quota:       quota,
		QuotaLimit:  aiLimit,
		Idempotency: idem,
		Log:         log,
	})

	return coord, coordinatorParts{
		entitlement: ent,
		ledger:      led,
		session:     sess,
	}
}
