package handlers

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/dubspace/dubspace-core/internal/errors"
	"github.com/dubspace/dubspace-core/internal/jobs"
)

// ProfileSyncer re-fetches the bound account's profile from the backend.
type ProfileSyncer interface {
	Refresh(ctx context.Context) error
}

// SessionReader exposes the identity of the currently bound account.
type SessionReader interface {
	AccountID() string
}

type ProfileRefreshHandler struct {
	syncer  ProfileSyncer
	session SessionReader
	errs    *errors.Handler
	log     *slog.Logger
}

func NewProfileRefreshHandler(syncer ProfileSyncer, session SessionReader, errs *errors.Handler, log *slog.Logger) *ProfileRefreshHandler {
	return &ProfileRefreshHandler{
		syncer:  syncer,
		session: session,
		errs:    errs,
		log:     log,
	}
}

func (h *ProfileRefreshHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.ProfileRefreshPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		if h.log != nil {
			h.log.ErrorContext(ctx, "profile refresh: failed to decode payload", "task_type", t.Type(), "error", err)
		}
		return err
	}

	bound := h.session.AccountID()
	if bound == "" {
		if h.log != nil {
			h.log.DebugContext(ctx, "profile refresh: no account bound, skipping")
		}
		return nil
	}

	// A task targeted at a specific account is dropped once that account
	// signs out.
	if payload.AccountID != "" && payload.AccountID != bound {
		if h.log != nil {
			h.log.DebugContext(ctx, "profile refresh: account no longer bound, skipping",
				"account_id", payload.AccountID)
		}
		return nil
	}

	if err := h.syncer.Refresh(ctx); err != nil {
		if h.errs != nil {
			h.errs.Handle(ctx, err)
		} else if h.log != nil {
			h.log.ErrorContext(ctx, "profile refresh: sync failed", "account_id", bound, "error", err)
		}
		return err
	}

	if h.log != nil {
		h.log.InfoContext(ctx, "profile refresh: completed", "account_id", bound, "forced", payload.Force)
	}

	return nil
}
