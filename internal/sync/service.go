// Package sync reconciles the local state containers with the canonical
// backend profile record.
package sync

import (
	"context"
	"database/sql"
	stderrors "errors"
	"log/slog"
	"sync"

	"github.com/dubspace/dubspace-core/internal/domain"
	"github.com/dubspace/dubspace-core/internal/errors"
	"github.com/dubspace/dubspace-core/internal/profilecache"
	"github.com/dubspace/dubspace-core/internal/repository"
	"github.com/dubspace/dubspace-core/internal/session"
)

var syncRecorder = func(operation, outcome string) {}

// RegisterSyncRecorder allows external packages to observe sync outcomes.
func RegisterSyncRecorder(recorder func(operation, outcome string)) {
	if recorder == nil {
		syncRecorder = func(string, string) {}
		return
	}

	syncRecorder = recorder
}

// Service pulls canonical account data from the backend and pushes local
// mutations back. Every remote call goes through the circuit breaker; only
// timeouts are retried. A generation counter makes superseded responses
// harmless: a stale refresh that resolves after a newer one is discarded.
type Service struct {
	repo    repository.ProfileRepository
	cache   *profilecache.Cache
	session *session.Container
	breaker *errors.CircuitBreaker
	log     *slog.Logger

	mu         sync.Mutex
	generation uint64
}

// NewService constructs a sync service over the given repository and cache.
func NewService(repo repository.ProfileRepository, cache *profilecache.Cache, sess *session.Container, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		repo:    repo,
		cache:   cache,
		session: sess,
		breaker: errors.NewCircuitBreaker(),
		log:     log,
	}
}

// Refresh loads the canonical profile for the bound account and reconciles
// the session container with it. Cached reads are served within their
// freshness window; a miss goes to the backend and repopulates the cache.
func (s *Service) Refresh(ctx context.Context) error {
	accountID := s.session.AccountID()
	if accountID == "" {
		return errors.NewNotAuthenticatedError()
	}

	gen := s.nextGeneration()

	if cached, err := s.cache.GetProfile(ctx, accountID); err == nil && cached != nil {
		return s.reconcile(ctx, gen, cached, "refresh_cached")
	} else if err != nil {
		s.log.Warn("profile cache read failed", "account_id", accountID, "error", err)
	}

	snapshot, err := s.fetch(ctx, accountID)
	if err != nil {
		syncRecorder("refresh", "error")
		return err
	}

	if s.isStale(gen) {
		syncRecorder("refresh", "superseded")
		return nil
	}

	s.populateCache(ctx, snapshot)
	return s.reconcile(ctx, gen, snapshot, "refresh")
}

// Update writes a partial profile change through to the backend. On failure
// the error is propagated and local state is left unchanged; on success the
// cache entry is replaced and the fresh row reconciled locally.
func (s *Service) Update(ctx context.Context, fields map[string]any) error {
	accountID := s.session.AccountID()
	if accountID == "" {
		return errors.NewNotAuthenticatedError()
	}

	var snapshot *domain.ProfileSnapshot
	err := s.breaker.Call(func() error {
		return errors.WithRetry(ctx, func() error {
			var callErr error
			snapshot, callErr = s.repo.UpdateFields(ctx, accountID, fields)
			return callErr
		})
	})
	if err != nil {
		syncRecorder("update", "error")
		return errors.NewRemoteError("update profile", err)
	}

	// a completed write supersedes any in-flight refresh
	gen := s.nextGeneration()

	s.populateCache(ctx, snapshot)
	return s.reconcile(ctx, gen, snapshot, "update")
}

// InvalidateBalance drops the cached balance so the next refresh reads a
// fresh value after a coin mutation.
func (s *Service) InvalidateBalance(ctx context.Context) error {
	accountID := s.session.AccountID()
	if accountID == "" {
		return errors.NewNotAuthenticatedError()
	}

	return s.cache.InvalidateBalance(ctx, accountID)
}

func (s *Service) fetch(ctx context.Context, accountID string) (*domain.ProfileSnapshot, error) {
	var snapshot *domain.ProfileSnapshot
	err := s.breaker.Call(func() error {
		return errors.WithRetry(ctx, func() error {
			var callErr error
			snapshot, callErr = s.repo.FindByID(ctx, accountID)
			return callErr
		})
	})
	if err == nil {
		return snapshot, nil
	}

	if !stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewRemoteError("fetch profile", err)
	}

	// first session for this account: provision an empty row
	err = s.breaker.Call(func() error {
		var callErr error
		snapshot, callErr = s.repo.Create(ctx, accountID)
		return callErr
	})
	if err != nil {
		return nil, errors.NewRemoteError("create profile", err)
	}

	return snapshot, nil
}

func (s *Service) reconcile(ctx context.Context, gen uint64, snapshot *domain.ProfileSnapshot, operation string) error {
	if s.isStale(gen) {
		syncRecorder(operation, "superseded")
		return nil
	}

	applied, err := s.session.ApplySnapshot(ctx, *snapshot)
	if err != nil {
		syncRecorder(operation, "error")
		return err
	}

	if applied {
		syncRecorder(operation, "applied")
	} else {
		syncRecorder(operation, "rejected_stale")
	}

	return nil
}

func (s *Service) populateCache(ctx context.Context, snapshot *domain.ProfileSnapshot) {
	if err := s.cache.SetProfile(ctx, snapshot); err != nil {
		s.log.Warn("failed to cache profile", "account_id", snapshot.AccountID, "error", err)
	}
	if err := s.cache.SetBalance(ctx, snapshot.AccountID, snapshot.TCoinBalance); err != nil {
		s.log.Warn("failed to cache balance", "account_id", snapshot.AccountID, "error", err)
	}
}

func (s *Service) nextGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	return s.generation
}

func (s *Service) isStale(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return gen != s.generation
}
