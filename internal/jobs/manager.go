package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Manager describes the queue operations needed by the application.
type Manager interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	EnqueueProfileRefresh(ctx context.Context, accountID string, force bool) error
	Close() error
}

type manager struct {
	client *asynq.Client
	log    *slog.Logger
}

// NewManager builds a Manager backed by an asynq client.
func NewManager(redisOpt asynq.RedisConnOpt, log *slog.Logger) Manager {
	client := asynq.NewClient(redisOpt)

	return &manager{
		client: client,
		log:    log,
	}
}

func (m *manager) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return m.client.EnqueueContext(ctx, task, opts...)
}

// EnqueueProfileRefresh queues an out-of-band refresh for the given account,
// e.g. right after sign-in or a purchase confirmed remotely.
func (m *manager) EnqueueProfileRefresh(ctx context.Context, accountID string, force bool) error {
	task, err := NewProfileRefreshTask(accountID, force)
	if err != nil {
		return err
	}

	info, err := m.Enqueue(ctx, task)
	if err != nil {
		return err
	}

	if m.log != nil {
		m.log.DebugContext(ctx, "enqueued profile refresh", "account_id", accountID, "task_id", info.ID)
	}

	return nil
}

func (m *manager) Close() error {
	return m.client.Close()
}
