package domain

import (
	"math"
	"time"
)

// Level represents a VIP membership tier.
type Level string

const (
	LevelNone    Level = "none"
	LevelBasic   Level = "basic"
	LevelPremium Level = "premium"
)

// Valid reports whether the level is a known tier.
func (l Level) Valid() bool {
	switch l {
	case LevelNone, LevelBasic, LevelPremium:
		return true
	}
	return false
}

// Entitlement is the persisted VIP membership record for one account.
type Entitlement struct {
	Level          Level      `json:"level"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	AutoRenew      bool       `json:"auto_renew"`
	SubscriptionID string     `json:"subscription_id,omitempty"`
}

// EmptyEntitlement returns the zero-value record for accounts without a subscription.
func EmptyEntitlement() Entitlement {
	return Entitlement{Level: LevelNone}
}

// RemainingDays returns the number of days left on the entitlement, floored at
// zero. Both dates are truncated to local midnight before subtraction so a
// partial day still counts as a full remaining day.
func (e Entitlement) RemainingDays(now time.Time) int {
	if e.ExpiresAt == nil {
		return 0
	}

	// Midnights are rebuilt in UTC so DST shifts cannot skew the day count.
	expiry := midnightUTC(e.ExpiresAt.Local())
	today := midnightUTC(now.Local())

	days := int(math.Round(expiry.Sub(today).Hours() / 24))
	if days < 0 {
		return 0
	}

	return days
}

// IsActive reports whether the entitlement currently grants VIP access.
func (e Entitlement) IsActive(now time.Time) bool {
	return e.Level != LevelNone && e.ExpiresAt != nil && e.RemainingDays(now) > 0
}

func midnightUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
