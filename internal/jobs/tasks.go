package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	TaskTypeProfileRefresh = "profile:refresh"
	TaskTypeAIUsageReset   = "ai:reset"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

type ProfileRefreshPayload struct {
	AccountID string `json:"account_id"`
	Force     bool   `json:"force"`
}

type AIUsageResetPayload struct {
	AccountID string `json:"account_id"`
}

// NewProfileRefreshTask builds a task that re-fetches the profile snapshot
// from the backend. An empty account ID refreshes whichever account is bound.
func NewProfileRefreshTask(accountID string, force bool) (*asynq.Task, error) {
	payload, err := json.Marshal(ProfileRefreshPayload{AccountID: accountID, Force: force})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskTypeProfileRefresh, payload, asynq.Queue(QueueDefault)), nil
}

// NewAIUsageResetTask builds a task that resets the daily AI feature counter.
func NewAIUsageResetTask(accountID string) (*asynq.Task, error) {
	payload, err := json.Marshal(AIUsageResetPayload{AccountID: accountID})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskTypeAIUsageReset, payload, asynq.Queue(QueueLow)), nil
}
