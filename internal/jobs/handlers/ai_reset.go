package handlers

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/dubspace/dubspace-core/internal/jobs"
)

// UsageResetter clears the daily AI feature counter.
type UsageResetter interface {
	AccountID() string
	ResetAIUsage(ctx context.Context) error
}

type AIUsageResetHandler struct {
	session UsageResetter
	log     *slog.Logger
}

func NewAIUsageResetHandler(session UsageResetter, log *slog.Logger) *AIUsageResetHandler {
	return &AIUsageResetHandler{
		session: session,
		log:     log,
	}
}

func (h *AIUsageResetHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.AIUsageResetPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		if h.log != nil {
			h.log.ErrorContext(ctx, "ai reset: failed to decode payload", "task_type", t.Type(), "error", err)
		}
		return err
	}

	bound := h.session.AccountID()
	if bound == "" {
		return nil
	}
	if payload.AccountID != "" && payload.AccountID != bound {
		return nil
	}

	if err := h.session.ResetAIUsage(ctx); err != nil {
		if h.log != nil {
			h.log.ErrorContext(ctx, "ai reset: failed", "account_id", bound, "error", err)
		}
		return err
	}

	if h.log != nil {
		h.log.InfoContext(ctx, "ai reset: daily usage cleared", "account_id", bound)
	}

	return nil
}
