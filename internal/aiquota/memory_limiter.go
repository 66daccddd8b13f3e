package aiquota

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type counter struct {
	day   string
	count int
}

// MemoryLimiter is an in-process fallback used when Redis is unavailable,
// e.g. offline mode. Counts do not survive restarts.
type MemoryLimiter struct {
	mu       sync.Mutex
	counters map[string]*counter
	log      *slog.Logger
	now      func() time.Time
}

var _ Limiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter returns an in-memory limiter implementation.
func NewMemoryLimiter(log *slog.Logger) *MemoryLimiter {
	if log == nil {
		log = slog.Default()
	}

	return &MemoryLimiter{
		counters: make(map[string]*counter),
		log:      log,
		now:      time.Now,
	}
}

// Consume spends one unit of the account's daily allowance.
func (m *MemoryLimiter) Consume(ctx context.Context, accountID string, limit int) (*Quota, error) {
	now := m.now()
	day := dayStamp(now)
	resetAt := nextMidnightUTC(now)

	if limit <= 0 {
		return &Quota{Allowed: false, Remaining: 0, ResetAt: resetAt}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cnt := m.counters[accountID]
	if cnt == nil || cnt.day != day {
		cnt = &counter{day: day}
		m.counters[accountID] = cnt
	}

	if cnt.count >= limit {
		return &Quota{Allowed: false, Remaining: 0, ResetAt: resetAt}, nil
	}

	cnt.count++

	return &Quota{
		Allowed:   true,
		Remaining: limit - cnt.count,
		ResetAt:   resetAt,
	}, nil
}

// Cleanup drops counters left over from previous days.
func (m *MemoryLimiter) Cleanup() {
	day := dayStamp(m.now())

	m.mu.Lock()
	defer m.mu.Unlock()

	for accountID, cnt := range m.counters {
		if cnt.day != day {
			delete(m.counters, accountID)
		}
	}
}
