// Package aiquota enforces the daily usage allowance for AI features.
package aiquota

import (
	"context"
	"errors"
	"time"
)

// Quota captures the outcome of a quota evaluation.
type Quota struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter describes a daily quota strategy. The window is a fixed calendar
// day in UTC, matching the backend's reset cadence.
type Limiter interface {
	Consume(ctx context.Context, accountID string, limit int) (*Quota, error)
}

// ErrQuotaExceeded indicates the daily allowance has been used up.
var ErrQuotaExceeded = errors.New("daily quota exceeded")

// nextMidnightUTC returns the instant the quota resets.
func nextMidnightUTC(now time.Time) time.Time {
	utc := now.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day()+1, 0, 0, 0, 0, time.UTC)
}

// dayStamp keys a quota counter to its calendar day.
func dayStamp(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}
