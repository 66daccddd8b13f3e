package ledger

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dubspace/dubspace-core/internal/domain"
	"github.com/dubspace/dubspace-core/internal/errors"
	"github.com/dubspace/dubspace-core/internal/storage"
)

func TestContainer_BalanceEqualsTransactionSum(t *testing.T) {
	c := newTestContainer(storage.NewMemoryStore())
	ctx := context.Background()
	require.NoError(t, c.SetAccount(ctx, "acc-1"))

	require.NoError(t, c.AddCoins(ctx, 100, domain.TransactionPurchase, "coin pack", "order-1"))
	require.NoError(t, c.AddCoins(ctx, 50, domain.TransactionBonus, "signup bonus", ""))

	ok, err := c.UseCoins(ctx, 30, domain.TransactionTranslation, "voice translation", "video-9")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.UseCoins(ctx, 20, domain.TransactionPlayback, "dub playback", "video-9")
	require.NoError(t, err)
	assert.True(t, ok)

	var sum int64
	for _, tx := range c.Transactions() {
		sum += tx.Amount
	}
	assert.Equal(t, c.Balance(), sum)
	assert.Equal(t, int64(100), c.Balance())
}

func TestContainer_UseCoinsInsufficientBalance(t *testing.T) {
	c := newTestContainer(storage.NewMemoryStore())
	ctx := context.Background()
	require.NoError(t, c.SetAccount(ctx, "acc-1"))
	require.NoError(t, c.AddCoins(ctx, 10, domain.TransactionPurchase, "coin pack", ""))

	lenBefore := len(c.Transactions())

	ok, err := c.UseCoins(ctx, 25, domain.TransactionTranslation, "voice translation", "")
	assert.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, int64(10), c.Balance())
	assert.Len(t, c.Transactions(), lenBefore)
}

func TestContainer_RejectsNonPositiveAmounts(t *testing.T) {
	c := newTestContainer(storage.NewMemoryStore())
	ctx := context.Background()
	require.NoError(t, c.SetAccount(ctx, "acc-1"))

	for _, amount := range []int64{0, -5} {
		err := c.AddCoins(ctx, amount, domain.TransactionPurchase, "coin pack", "")
		assert.Equal(t, "E101", appErrorCode(t, err))

		_, err = c.UseCoins(ctx, amount, domain.TransactionPlayback, "dub playback", "")
		assert.Equal(t, "E101", appErrorCode(t, err))
	}

	assert.Empty(t, c.Transactions())
	assert.Zero(t, c.Balance())
}

func TestContainer_RequiresAccount(t *testing.T) {
	c := newTestContainer(storage.NewMemoryStore())
	ctx := context.Background()

	err := c.AddCoins(ctx, 10, domain.TransactionPurchase, "coin pack", "")
	assert.Equal(t, "E100", appErrorCode(t, err))

	_, err = c.UseCoins(ctx, 10, domain.TransactionPlayback, "dub playback", "")
	assert.Equal(t, "E100", appErrorCode(t, err))
}

func TestContainer_TransactionsByType(t *testing.T) {
	c := newTestContainer(storage.NewMemoryStore())
	ctx := context.Background()
	require.NoError(t, c.SetAccount(ctx, "acc-1"))

	require.NoError(t, c.AddCoins(ctx, 100, domain.TransactionPurchase, "first pack", ""))
	_, err := c.UseCoins(ctx, 10, domain.TransactionTranslation, "translation", "")
	require.NoError(t, err)
	require.NoError(t, c.AddCoins(ctx, 200, domain.TransactionPurchase, "second pack", ""))

	purchases := c.TransactionsByType(domain.TransactionPurchase)
	require.Len(t, purchases, 2)
	assert.Equal(t, "first pack", purchases[0].Description)
	assert.Equal(t, "second pack", purchases[1].Description)

	assert.Empty(t, c.TransactionsByType(domain.TransactionRefund))
}

func TestContainer_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	c := newTestContainer(storage.NewMemoryStore())
	ctx := context.Background()
	require.NoError(t, c.SetAccount(ctx, "acc-1"))
	require.NoError(t, c.AddCoins(ctx, 100, domain.TransactionPurchase, "coin pack", ""))

	const workers = 20

	var wg sync.WaitGroup
	results := make(chan bool, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := c.UseCoins(ctx, 10, domain.TransactionPlayback, "dub playback", "")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			results <- ok
		}()
	}

	wg.Wait()
	close(results)

	var succeeded int
	for ok := range results {
		if ok {
			succeeded++
		}
	}

	assert.Equal(t, 10, succeeded)
	assert.Zero(t, c.Balance())

	var sum int64
	for _, tx := range c.Transactions() {
		sum += tx.Amount
	}
	assert.Zero(t, sum)
}

func TestContainer_PersistenceRoundTrip(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	first := newTestContainer(store)
	require.NoError(t, first.SetAccount(ctx, "acc-1"))
	require.NoError(t, first.AddCoins(ctx, 75, domain.TransactionPurchase, "coin pack", "order-7"))
	_, err := first.UseCoins(ctx, 25, domain.TransactionSubscription, "premium month", "")
	require.NoError(t, err)

	second := newTestContainer(store)
	require.NoError(t, second.SetAccount(ctx, "acc-1"))

	assert.Equal(t, int64(50), second.Balance())
	assert.Equal(t, first.Transactions(), second.Transactions())
}

func TestContainer_LoadReconcilesDriftedBalance(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	first := newTestContainer(store)
	require.NoError(t, first.SetAccount(ctx, "acc-1"))
	require.NoError(t, first.AddCoins(ctx, 40, domain.TransactionBonus, "bonus", ""))

	// simulate a stored balance that drifted away from the ledger
	require.NoError(t, store.Set(ctx, storage.BalanceKey("acc-1"), "9999"))

	second := newTestContainer(store)
	require.NoError(t, second.SetAccount(ctx, "acc-1"))
	assert.Equal(t, int64(40), second.Balance())
}

func TestContainer_AccountSwitchClearsState(t *testing.T) {
	store := storage.NewMemoryStore()
	c := newTestContainer(store)
	ctx := context.Background()

	require.NoError(t, c.SetAccount(ctx, "acc-1"))
	require.NoError(t, c.AddCoins(ctx, 60, domain.TransactionPurchase, "coin pack", ""))

	require.NoError(t, c.SetAccount(ctx, "acc-2"))
	assert.Zero(t, c.Balance())
	assert.Empty(t, c.Transactions())
}

func TestContainer_SignOutRemovesPersistedKeys(t *testing.T) {
	store := storage.NewMemoryStore()
	c := newTestContainer(store)
	ctx := context.Background()

	require.NoError(t, c.SetAccount(ctx, "acc-1"))
	require.NoError(t, c.AddCoins(ctx, 15, domain.TransactionPurchase, "coin pack", ""))
	require.NoError(t, c.SignOut(ctx))

	_, err := store.Get(ctx, storage.BalanceKey("acc-1"))
	assert.ErrorIs(t, err, storage.ErrKeyNotFound)
	_, err = store.Get(ctx, storage.TransactionsKey("acc-1"))
	assert.ErrorIs(t, err, storage.ErrKeyNotFound)
}

func newTestContainer(store storage.Store) *Container {
	return NewContainer(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func appErrorCode(t *testing.T, err error) string {
	t.Helper()

	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %v", err)
	}

	return appErr.Code
}
