package sync

import (
	"context"
	"database/sql"
	stderrors "errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dubspace/dubspace-core/internal/domain"
	"github.com/dubspace/dubspace-core/internal/errors"
	"github.com/dubspace/dubspace-core/internal/profilecache"
	"github.com/dubspace/dubspace-core/internal/session"
	"github.com/dubspace/dubspace-core/internal/storage"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) FindByID(ctx context.Context, accountID string) (*domain.ProfileSnapshot, error) {
	args := m.Called(ctx, accountID)
	snapshot, _ := args.Get(0).(*domain.ProfileSnapshot)
	return snapshot, args.Error(1)
}

func (m *mockRepository) Create(ctx context.Context, accountID string) (*domain.ProfileSnapshot, error) {
	args := m.Called(ctx, accountID)
	snapshot, _ := args.Get(0).(*domain.ProfileSnapshot)
	return snapshot, args.Error(1)
}

func (m *mockRepository) UpdateFields(ctx context.Context, accountID string, fields map[string]any) (*domain.ProfileSnapshot, error) {
	args := m.Called(ctx, accountID, fields)
	snapshot, _ := args.Get(0).(*domain.ProfileSnapshot)
	return snapshot, args.Error(1)
}

func TestService_RefreshPopulatesSessionAndCache(t *testing.T) {
	repo := &mockRepository{}
	svc, sess, cache := newTestService(t, repo)
	ctx := context.Background()
	require.NoError(t, sess.SetAccount(ctx, "acc-1"))

	repo.On("FindByID", mock.Anything, "acc-1").
		Return(testSnapshot("acc-1", 120), nil).Once()

	require.NoError(t, svc.Refresh(ctx))

	assert.Equal(t, int64(120), sess.State().CoinBalance)
	assert.True(t, sess.State().IsVIP)

	cached, err := cache.GetProfile(ctx, "acc-1")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, int64(120), cached.TCoinBalance)

	repo.AssertExpectations(t)
}

func TestService_RefreshServedFromCache(t *testing.T) {
	repo := &mockRepository{}
	svc, sess, _ := newTestService(t, repo)
	ctx := context.Background()
	require.NoError(t, sess.SetAccount(ctx, "acc-1"))

	repo.On("FindByID", mock.Anything, "acc-1").
		Return(testSnapshot("acc-1", 75), nil).Once()

	require.NoError(t, svc.Refresh(ctx))
	// second refresh inside the freshness window must not hit the backend
	require.NoError(t, svc.Refresh(ctx))

	assert.Equal(t, int64(75), sess.State().CoinBalance)
	repo.AssertExpectations(t)
}

func TestService_RefreshProvisionsMissingProfile(t *testing.T) {
	repo := &mockRepository{}
	svc, sess, _ := newTestService(t, repo)
	ctx := context.Background()
	require.NoError(t, sess.SetAccount(ctx, "acc-new"))

	repo.On("FindByID", mock.Anything, "acc-new").
		Return(nil, sql.ErrNoRows).Once()
	repo.On("Create", mock.Anything, "acc-new").
		Return(testSnapshot("acc-new", 0), nil).Once()

	require.NoError(t, svc.Refresh(ctx))

	assert.Zero(t, sess.State().CoinBalance)
	repo.AssertExpectations(t)
}

func TestService_RefreshRequiresAccount(t *testing.T) {
	repo := &mockRepository{}
	svc, _, _ := newTestService(t, repo)

	err := svc.Refresh(context.Background())

	var appErr *errors.AppError
	require.True(t, stderrors.As(err, &appErr))
	assert.Equal(t, "E100", appErr.Code)
}

func TestService_UpdateWritesThrough(t *testing.T) {
	repo := &mockRepository{}
	svc, sess, cache := newTestService(t, repo)
	ctx := context.Background()
	require.NoError(t, sess.SetAccount(ctx, "acc-1"))

	fields := map[string]any{"tcoin_balance": int64(300)}
	repo.On("UpdateFields", mock.Anything, "acc-1", fields).
		Return(testSnapshot("acc-1", 300), nil).Once()

	require.NoError(t, svc.Update(ctx, fields))

	assert.Equal(t, int64(300), sess.State().CoinBalance)

	balance, found, err := cache.GetBalance(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(300), balance)

	repo.AssertExpectations(t)
}

func TestService_UpdateFailureLeavesLocalStateUnchanged(t *testing.T) {
	repo := &mockRepository{}
	svc, sess, _ := newTestService(t, repo)
	ctx := context.Background()
	require.NoError(t, sess.SetAccount(ctx, "acc-1"))
	require.NoError(t, sess.AdjustCoinBalance(ctx, 40))

	repo.On("UpdateFields", mock.Anything, "acc-1", mock.Anything).
		Return(nil, stderrors.New("backend unavailable")).Once()

	err := svc.Update(ctx, map[string]any{"tcoin_balance": int64(0)})

	var appErr *errors.AppError
	require.True(t, stderrors.As(err, &appErr))
	assert.Equal(t, "E300", appErr.Code)
	assert.Equal(t, int64(40), sess.State().CoinBalance)

	repo.AssertExpectations(t)
}

func TestService_SupersededRefreshDiscarded(t *testing.T) {
	repo := newGatedRepo()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	// zero TTLs would never expire in-test; keep them tiny instead so both
	// refreshes miss the cache
	cache := profilecache.New(client, time.Millisecond, time.Millisecond)
	sess := session.NewContainer(storage.NewMemoryStore(), 10, testLogger())
	svc := NewService(repo, cache, sess, testLogger())

	ctx := context.Background()
	require.NoError(t, sess.SetAccount(ctx, "acc-1"))

	older := testSnapshot("acc-1", 10)
	older.FetchedAt = time.Now().Add(-time.Minute)
	newer := testSnapshot("acc-1", 200)

	repo.queue(older, newer)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = svc.Refresh(ctx) // resolves with the older snapshot, slowly
	}()

	repo.waitUntilBlocked()
	mr.FastForward(10 * time.Millisecond)
	require.NoError(t, svc.Refresh(ctx)) // resolves with the newer snapshot first

	repo.release()
	wg.Wait()

	assert.Equal(t, int64(200), sess.State().CoinBalance)
}

func newTestService(t *testing.T, repo *mockRepository) (*Service, *session.Container, *profilecache.Cache) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := profilecache.New(client, 5*time.Minute, time.Minute)
	sess := session.NewContainer(storage.NewMemoryStore(), 10, testLogger())
	svc := NewService(repo, cache, sess, testLogger())

	return svc, sess, cache
}

func testSnapshot(accountID string, balance int64) *domain.ProfileSnapshot {
	expiry := time.Now().AddDate(0, 1, 0)
	return &domain.ProfileSnapshot{
		AccountID:    accountID,
		IsVIP:        true,
		VIPExpiry:    &expiry,
		TCoinBalance: balance,
		AIUsage:      1,
		FetchedAt:    time.Now(),
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// gatedRepo serves queued snapshots, blocking the first FindByID until
// released so tests can interleave two in-flight refreshes.
type gatedRepo struct {
	mu        sync.Mutex
	snapshots []*domain.ProfileSnapshot
	calls     int
	blocked   bool
	gate      chan struct{}
}

func newGatedRepo() *gatedRepo {
	return &gatedRepo{gate: make(chan struct{})}
}

func (r *gatedRepo) queue(snapshots ...*domain.ProfileSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, snapshots...)
}

func (r *gatedRepo) FindByID(ctx context.Context, accountID string) (*domain.ProfileSnapshot, error) {
	r.mu.Lock()
	call := r.calls
	r.calls++
	var snapshot *domain.ProfileSnapshot
	if len(r.snapshots) > 0 {
		snapshot = r.snapshots[0]
		r.snapshots = r.snapshots[1:]
	}
	if call == 0 {
		r.blocked = true
	}
	r.mu.Unlock()

	if call == 0 {
		<-r.gate
	}

	if snapshot == nil {
		return nil, sql.ErrNoRows
	}
	return snapshot, nil
}

func (r *gatedRepo) Create(ctx context.Context, accountID string) (*domain.ProfileSnapshot, error) {
	return nil, stderrors.New("not implemented")
}

func (r *gatedRepo) UpdateFields(ctx context.Context, accountID string, fields map[string]any) (*domain.ProfileSnapshot, error) {
	return nil, stderrors.New("not implemented")
}

func (r *gatedRepo) waitUntilBlocked() {
	for {
		r.mu.Lock()
		blocked := r.blocked
		r.mu.Unlock()
		if blocked {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

func (r *gatedRepo) release() {
	close(r.gate)
}
