package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
)

type Scheduler interface {
	RegisterTasks() error
	Run()
	Shutdown()
}

type scheduler struct {
	asynqScheduler  *asynq.Scheduler
	refreshSchedule string
	resetSchedule   string
	log             *slog.Logger
}

// NewScheduler builds a cron scheduler for the periodic refresh and reset
// tasks. Schedules are standard five-field cron expressions.
func NewScheduler(redisOpt asynq.RedisConnOpt, refreshSchedule, resetSchedule string, log *slog.Logger) Scheduler {
	return &scheduler{
		asynqScheduler:  asynq.NewScheduler(redisOpt, nil),
		refreshSchedule: refreshSchedule,
		resetSchedule:   resetSchedule,
		log:             log,
	}
}

func (s *scheduler) RegisterTasks() error {
	refresh, err := NewProfileRefreshTask("", false)
	if err != nil {
		return err
	}

	if _, err := s.asynqScheduler.Register(s.refreshSchedule, refresh); err != nil {
		return err
	}

	reset, err := NewAIUsageResetTask("")
	if err != nil {
		return err
	}

	if _, err := s.asynqScheduler.Register(s.resetSchedule, reset); err != nil {
		return err
	}

	if s.log != nil {
		s.log.InfoContext(context.Background(), "scheduler: registered refresh and reset tasks",
			"refresh_schedule", s.refreshSchedule, "reset_schedule", s.resetSchedule)
	}

	return nil
}

func (s *scheduler) Run() {
	if s.log != nil {
		s.log.InfoContext(context.Background(), "scheduler: starting")
	}

	go func() {
		if err := s.asynqScheduler.Run(); err != nil && s.log != nil {
			s.log.ErrorContext(context.Background(), "scheduler: run failed", "error", err)
		}
	}()
}

func (s *scheduler) Shutdown() {
	if s.log != nil {
		s.log.InfoContext(context.Background(), "scheduler: shutting down")
	}

	s.asynqScheduler.Shutdown()
}
