// Package ledger manages the per-account TCoin balance and its append-only
// transaction log.
package ledger

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dubspace/dubspace-core/internal/domain"
	"github.com/dubspace/dubspace-core/internal/errors"
	"github.com/dubspace/dubspace-core/internal/storage"
)

var transactionRecorder = func(txType string, amount int64) {}

// RegisterTransactionRecorder allows external packages to observe ledger mutations.
func RegisterTransactionRecorder(recorder func(txType string, amount int64)) {
	if recorder == nil {
		transactionRecorder = func(string, int64) {}
		return
	}

	transactionRecorder = recorder
}

// Container holds the TCoin balance and transaction log for the bound
// account. The mutex is held across check, persist and apply, so two
// concurrent debits can never both pass the balance check.
type Container struct {
	store storage.Store
	log   *slog.Logger
	now   func() time.Time

	mu           sync.Mutex
	accountID    string
	balance      int64
	transactions []domain.Transaction
	loading      bool
	generation   uint64
}

// NewContainer constructs an empty ledger container.
func NewContainer(store storage.Store, log *slog.Logger) *Container {
	if log == nil {
		log = slog.Default()
	}

	return &Container{
		store: store,
		log:   log,
		now:   time.Now,
	}
}

// SetAccount binds the container to a new account, clearing the previous
// account's balance and log before the new data loads.
func (c *Container) SetAccount(ctx context.Context, accountID string) error {
	c.mu.Lock()
	c.accountID = accountID
	c.balance = 0
	c.transactions = nil
	c.generation++
	gen := c.generation
	c.loading = accountID != ""
	c.mu.Unlock()

	if accountID == "" {
		return nil
	}

	balance, transactions, err := c.load(ctx, accountID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return nil
	}
	c.loading = false

	if err != nil {
		return err
	}

	c.balance = balance
	c.transactions = transactions
	return nil
}

// AddCoins credits the account and appends a transaction with the positive
// amount. Fails before any mutation when the amount is not positive or no
// account is bound.
func (c *Container) AddCoins(ctx context.Context, amount int64, txType domain.TransactionType, description, referenceID string) error {
	if amount <= 0 {
		return errors.NewInvalidAmountError(amount)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accountID == "" {
		return errors.NewNotAuthenticatedError()
	}

	return c.applyLocked(ctx, amount, txType, description, referenceID)
}

// UseCoins debits the account. An insufficient balance is a reported outcome,
// not an error: it returns (false, nil) and leaves the ledger untouched.
func (c *Container) UseCoins(ctx context.Context, amount int64, txType domain.TransactionType, description, referenceID string) (bool, error) {
	if amount <= 0 {
		return false, errors.NewInvalidAmountError(amount)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accountID == "" {
		return false, errors.NewNotAuthenticatedError()
	}

	if c.balance < amount {
		return false, nil
	}

	if err := c.applyLocked(ctx, -amount, txType, description, referenceID); err != nil {
		return false, err
	}

	return true, nil
}

// TransactionsByType returns the transactions of the given type in
// chronological order.
func (c *Container) TransactionsByType(txType domain.TransactionType) []domain.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()

	var matched []domain.Transaction
	for _, tx := range c.transactions {
		if tx.Type == txType {
			matched = append(matched, tx)
		}
	}

	return matched
}

// Balance returns the current TCoin balance.
func (c *Container) Balance() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.balance
}

// Transactions returns a copy of the full transaction log in chronological order.
func (c *Container) Transactions() []domain.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]domain.Transaction, len(c.transactions))
	copy(out, c.transactions)
	return out
}

// Loading reports whether persisted data is still being loaded.
func (c *Container) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.loading
}

// SignOut clears the in-memory ledger and removes both persisted keys.
func (c *Container) SignOut(ctx context.Context) error {
	c.mu.Lock()
	accountID := c.accountID
	c.accountID = ""
	c.balance = 0
	c.transactions = nil
	c.generation++
	c.loading = false
	c.mu.Unlock()

	if accountID == "" {
		return nil
	}

	if err := c.store.Remove(ctx, storage.BalanceKey(accountID)); err != nil {
		c.log.Error("failed to clear balance", "account_id", accountID, "error", err)
		return errors.NewStorageError(err)
	}
	if err := c.store.Remove(ctx, storage.TransactionsKey(accountID)); err != nil {
		c.log.Error("failed to clear transactions", "account_id", accountID, "error", err)
		return errors.NewStorageError(err)
	}

	return nil
}

// applyLocked appends a transaction with the signed amount, persists balance
// and log together, and only then updates memory.
func (c *Container) applyLocked(ctx context.Context, amount int64, txType domain.TransactionType, description, referenceID string) error {
	tx := domain.Transaction{
		ID:          "tx_" + uuid.NewString(),
		Type:        txType,
		Amount:      amount,
		CreatedAt:   c.now().UTC(),
		Description: description,
		ReferenceID: referenceID,
	}

	newBalance := c.balance + amount
	newTransactions := append(append([]domain.Transaction(nil), c.transactions...), tx)

	data, err := json.Marshal(newTransactions)
	if err != nil {
		return errors.NewStorageError(err)
	}

	if err := c.store.Set(ctx, storage.TransactionsKey(c.accountID), string(data)); err != nil {
		c.log.Error("failed to persist transactions", "account_id", c.accountID, "error", err)
		return errors.NewStorageError(err)
	}
	if err := c.store.Set(ctx, storage.BalanceKey(c.accountID), strconv.FormatInt(newBalance, 10)); err != nil {
		c.log.Error("failed to persist balance", "account_id", c.accountID, "error", err)
		return errors.NewStorageError(err)
	}

	c.balance = newBalance
	c.transactions = newTransactions
	transactionRecorder(string(txType), amount)
	return nil
}

func (c *Container) load(ctx context.Context, accountID string) (int64, []domain.Transaction, error) {
	var balance int64
	raw, err := c.store.Get(ctx, storage.BalanceKey(accountID))
	switch {
	case err == nil:
		balance, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.log.Error("failed to parse balance", "account_id", accountID, "error", err)
			return 0, nil, errors.NewStorageError(err)
		}
	case stderrors.Is(err, storage.ErrKeyNotFound):
		balance = 0
	default:
		c.log.Error("failed to load balance", "account_id", accountID, "error", err)
		return 0, nil, errors.NewStorageError(err)
	}

	var transactions []domain.Transaction
	raw, err = c.store.Get(ctx, storage.TransactionsKey(accountID))
	switch {
	case err == nil:
		if err := json.Unmarshal([]byte(raw), &transactions); err != nil {
			c.log.Error("failed to decode transactions", "account_id", accountID, "error", err)
			return 0, nil, errors.NewStorageError(err)
		}
	case stderrors.Is(err, storage.ErrKeyNotFound):
	default:
		c.log.Error("failed to load transactions", "account_id", accountID, "error", err)
		return 0, nil, errors.NewStorageError(err)
	}

	// The ledger is the source of truth: a balance that drifted from the
	// transaction sum is reconciled on load.
	var sum int64
	for _, tx := range transactions {
		sum += tx.Amount
	}
	if len(transactions) > 0 && sum != balance {
		c.log.Warn("balance out of sync with transaction log, reconciling",
			"account_id", accountID, "stored", balance, "ledger_sum", sum)
		balance = sum
	}

	return balance, transactions, nil
}
