package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/dubspace/dubspace-core/internal/aiquota"
	"github.com/dubspace/dubspace-core/internal/domain"
	"github.com/dubspace/dubspace-core/internal/entitlement"
	"github.com/dubspace/dubspace-core/internal/errors"
	"github.com/dubspace/dubspace-core/internal/idempotency"
	"github.com/dubspace/dubspace-core/internal/ledger"
	"github.com/dubspace/dubspace-core/internal/session"
)

// purchaseDedupTTL bounds how long a processed receipt blocks replays.
const purchaseDedupTTL = 24 * time.Hour

// CoordinatorDeps carries everything the coordinator drives. Quota and
// Idempotency are optional; without them AI gating falls back to the local
// counter and purchases are credited without receipt deduplication.
type CoordinatorDeps struct {
	Entitlement *entitlement.Container
	Ledger      *ledger.Container
	Session     *session.Container
	SyncService *Service
	Quota       aiquota.Limiter
	QuotaLimit  int
	Idempotency idempotency.Manager
	Log         *slog.Logger
}

// Coordinator drives account transitions across all account-scoped
// containers. State is reset synchronously before any new data loads, so a
// reader can never observe the previous account's data after a switch.
type Coordinator struct {
	entitlement *entitlement.Container
	ledger      *ledger.Container
	session     *session.Container
	syncService *Service
	quota       aiquota.Limiter
	quotaLimit  int
	idem        idempotency.Manager
	log         *slog.Logger
}

// NewCoordinator wires the containers and the sync service together.
func NewCoordinator(deps CoordinatorDeps) *Coordinator {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}

	return &Coordinator{
		entitlement: deps.Entitlement,
		ledger:      deps.Ledger,
		session:     deps.Session,
		syncService: deps.SyncService,
		quota:       deps.Quota,
		quotaLimit:  deps.QuotaLimit,
		idem:        deps.Idempotency,
		log:         log,
	}
}

// SignIn binds every container to the account and kicks off the first
// refresh. Container load failures are surfaced but do not abort the
// remaining binds.
func (c *Coordinator) SignIn(ctx context.Context, account domain.Account) error {
	c.log.Info("binding account", slog.String("account_id", account.ID), slog.String("email", account.Email))

	var firstErr error
	if err := c.session.SetAccount(ctx, account.ID); err != nil {
		firstErr = err
	}
	if err := c.entitlement.SetAccount(ctx, account.ID); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.ledger.SetAccount(ctx, account.ID); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return firstErr
	}

	if err := c.syncService.Refresh(ctx); err != nil {
		c.log.Warn("initial profile refresh failed", slog.String("account_id", account.ID), slog.Any("error", err))
		return err
	}

	return nil
}

// UseAIFeature spends one unit of the daily AI allowance. VIP accounts
// bypass the limit. A used-up allowance returns false with no error.
func (c *Coordinator) UseAIFeature(ctx context.Context) (bool, error) {
	accountID := c.session.AccountID()
	if accountID == "" {
		return false, errors.NewNotAuthenticatedError()
	}

	if c.entitlement.IsActive() {
		return true, nil
	}

	if !c.session.CanUseAI() {
		return false, nil
	}

	if c.quota != nil {
		quota, err := c.quota.Consume(ctx, accountID, c.quotaLimit)
		if err != nil {
			// The shared counter is advisory; the local counter still
			// enforces the limit when Redis is unreachable.
			c.log.Warn("quota check failed", slog.String("account_id", accountID), slog.Any("error", err))
		} else if !quota.Allowed {
			return false, nil
		}
	}

	if err := c.session.IncrementAIUsage(ctx); err != nil {
		return false, err
	}

	return true, nil
}

// PurchaseCoins credits a completed coin purchase. The receipt ID
// deduplicates replays: delivering the same receipt twice credits once and
// reports false the second time.
func (c *Coordinator) PurchaseCoins(ctx context.Context, amount int64, receiptID string) (bool, error) {
	accountID := c.session.AccountID()
	if accountID == "" {
		return false, errors.NewNotAuthenticatedError()
	}
	if amount <= 0 {
		return false, errors.NewInvalidAmountError(amount)
	}

	credit := func(ctx context.Context) (any, error) {
		if err := c.ledger.AddCoins(ctx, amount, domain.TransactionPurchase, "coin purchase", receiptID); err != nil {
			return nil, err
		}

		balance := c.ledger.Balance()
		if err := c.syncService.Update(ctx, map[string]any{"tcoin_balance": balance}); err != nil {
			c.log.Warn("failed to push purchased balance", slog.String("account_id", accountID), slog.Any("error", err))
		}

		return balance, nil
	}

	if c.idem == nil || receiptID == "" {
		_, err := credit(ctx)
		return err == nil, err
	}

	result, err := c.idem.Execute(ctx, idempotency.PurchaseKey(accountID, receiptID), purchaseDedupTTL, credit)
	if err != nil {
		return false, err
	}

	if result.FromCache {
		c.log.Info("purchase receipt already processed", slog.String("account_id", accountID), slog.String("receipt_id", receiptID))
		return false, nil
	}

	return true, nil
}

// SignOut clears all account-scoped state, in memory and on disk.
func (c *Coordinator) SignOut(ctx context.Context) error {
	var firstErr error
	if err := c.entitlement.SignOut(ctx); err != nil {
		firstErr = err
	}
	if err := c.ledger.SignOut(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.session.SignOut(ctx); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}
