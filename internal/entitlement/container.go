// Package entitlement manages the per-account VIP membership record.
package entitlement

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dubspace/dubspace-core/internal/domain"
	"github.com/dubspace/dubspace-core/internal/errors"
	"github.com/dubspace/dubspace-core/internal/storage"
)

var changeRecorder = func(event string, level string) {}

// RegisterChangeRecorder allows external packages to observe entitlement changes.
func RegisterChangeRecorder(recorder func(event string, level string)) {
	if recorder == nil {
		changeRecorder = func(string, string) {}
		return
	}

	changeRecorder = recorder
}

// Container holds the entitlement record for the bound account. It persists
// every change before updating memory, so a storage failure leaves the
// in-memory record untouched.
type Container struct {
	store  storage.Store
	log    *slog.Logger
	now    func() time.Time
	period time.Duration

	mu         sync.Mutex
	accountID  string
	state      domain.Entitlement
	loading    bool
	generation uint64
}

// NewContainer constructs an entitlement container. periodDays is the billing
// period applied at subscribe time.
func NewContainer(store storage.Store, periodDays int, log *slog.Logger) *Container {
	if log == nil {
		log = slog.Default()
	}
	if periodDays <= 0 {
		periodDays = 30
	}

	return &Container{
		store:  store,
		log:    log,
		now:    time.Now,
		period: time.Duration(periodDays) * 24 * time.Hour,
		state:  domain.EmptyEntitlement(),
	}
}

// SetAccount binds the container to a new account. The previous account's
// state is cleared synchronously before the new record is loaded, so readers
// never observe cross-account data. A stale load is discarded when the
// account switches again before it resolves.
func (c *Container) SetAccount(ctx context.Context, accountID string) error {
	c.mu.Lock()
	c.accountID = accountID
	c.state = domain.EmptyEntitlement()
	c.generation++
	gen := c.generation
	c.loading = accountID != ""
	c.mu.Unlock()

	if accountID == "" {
		return nil
	}

	raw, err := c.store.Get(ctx, storage.EntitlementKey(accountID))

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

		c.log.Error("failed to load entitlement", "account_id", accountID, "error", err)
		return errors.NewStorageError(err)
	}

	var record domain.Entitlement
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		c.log.Error("failed to decode entitlement", "account_id", accountID, "error", err)
		return errors.NewStorageError(err)
	}

	c.state = record
	return nil
}

// Subscribe starts a subscription at the requested level. The expiry is set
// one billing period from now and auto-renew is enabled.
func (c *Container) Subscribe(ctx context.Context, level domain.Level) error {
	if !level.Valid() || level == domain.LevelNone {
		return errors.NewValidationError(fmt.Sprintf("invalid subscription level: %s", level))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accountID == "" {
		return errors.NewNotAuthenticatedError()
	}

	expiry := c.now().Add(c.period)
	record := domain.Entitlement{
		Level:          level,
		ExpiresAt:      &expiry,
		AutoRenew:      true,
		SubscriptionID: "sub_" + uuid.NewString(),
	}

	if err := c.persistLocked(ctx, record); err != nil {
		return err
	}

	c.state = record
	changeRecorder("subscribe", string(level))
	return nil
}

// CancelSubscription stops renewal of the current subscription. Level and
// expiry are untouched: access continues until natural expiry.
func (c *Container) CancelSubscription(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accountID == "" {
		return errors.NewNotAuthenticatedError()
	}
	if c.state.SubscriptionID == "" {
		return errors.NewNoSubscriptionError()
	}

	record := c.state
	record.AutoRenew = false

	if err := c.persistLocked(ctx, record); err != nil {
		return err
	}

	c.state = record
	changeRecorder("cancel", string(record.Level))
	return nil
}

// ToggleAutoRenew flips the auto-renew flag of an active entitlement.
func (c *Container) ToggleAutoRenew(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accountID == "" {
		return errors.NewNotAuthenticatedError()
	}
	if !c.state.IsActive(c.now()) {
		return errors.NewNoSubscriptionError()
	}

	record := c.state
	record.AutoRenew = !record.AutoRenew

	if err := c.persistLocked(ctx, record); err != nil {
		return err
	}

	c.state = record
	changeRecorder("toggle_auto_renew", string(record.Level))
	return nil
}

// SignOut clears the in-memory record and removes the persisted key.
func (c *Container) SignOut(ctx context.Context) error {
	c.mu.Lock()
	accountID := c.accountID
	c.accountID = ""
	c.state = domain.EmptyEntitlement()
	c.generation++
	c.loading = false
	c.mu.Unlock()

	if accountID == "" {
		return nil
	}

	if err := c.store.Remove(ctx, storage.EntitlementKey(accountID)); err != nil {
		c.log.Error("failed to clear entitlement", "account_id", accountID, "error", err)
		return errors.NewStorageError(err)
	}

	return nil
}

// State returns a copy of the current entitlement record.
func (c *Container) State() domain.Entitlement {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// IsActive reports whether the bound account currently has VIP access.
func (c *Container) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state.IsActive(c.now())
}

// RemainingDays returns the days left on the entitlement, floored at zero.
func (c *Container) RemainingDays() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state.RemainingDays(c.now())
}

// Loading reports whether a persisted record is still being loaded. Until it
// returns false the container's state is not authoritative.
func (c *Container) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.loading
}

func (c *Container) persistLocked(ctx context.Context, record domain.Entitlement) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.NewStorageError(err)
	}

	if err := c.store.Set(ctx, storage.EntitlementKey(c.accountID), string(data)); err != nil {
		c.log.Error("failed to persist entitlement", "account_id", c.accountID, "error", err)
		return errors.NewStorageError(err)
	}

	return nil
}
