package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Task is a named background job with a cron schedule.
type Task struct {
	Schedule string
	Run      func(ctx context.Context) error
}

// Scheduler manages the recurring maintenance jobs using gocron.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
	tasks     map[string]Task

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a scheduler over the given task map.
func NewScheduler(logger *slog.Logger, tasks map[string]Task) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	return &Scheduler{
		scheduler: s,
		logger:    logger.With("component", "scheduler"),
		tasks:     tasks,
	}, nil
}

// Start registers every task and starts the scheduler's internal ticking.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	scheduledCount := 0
	for name, task := range s.tasks {
		if task.Schedule == "" {
			s.logger.Warn("Task has empty schedule, skipping", "task_name", name)
			continue
		}

		taskFunc := task.Run
		_, err := s.scheduler.NewJob(
			gocron.CronJob(task.Schedule, false),
			gocron.NewTask(
				func(ctx context.Context, name string) {
					s.logger.Info("Running scheduled task", "task_name", name)
					startTime := time.Now()
					if taskErr := taskFunc(ctx); taskErr != nil {
						s.logger.Error("Scheduled task failed", "task_name", name, "error", taskErr)
					}
					s.logger.Info("Finished scheduled task",
						"task_name", name, "duration", time.Since(startTime))
				},
				context.Background(),
				name,
			),
			gocron.WithName(name),
		)
		if err != nil {
			s.logger.Error("Failed to schedule task",
				"task_name", name, "schedule", task.Schedule, "error", err)
			continue
		}

		s.logger.Info("Scheduled task", "task_name", name, "schedule", task.Schedule)
		scheduledCount++
	}

	s.scheduler.Start()
	s.running = true
	s.logger.Info("Scheduler started", "tasks_scheduled", scheduledCount)

	return nil
}

// Stop shuts the scheduler down, waiting for running jobs to complete.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	err := s.scheduler.Shutdown()
	s.running = false
	if err != nil {
		return fmt.Errorf("scheduler shutdown failed: %w", err)
	}

	s.logger.Info("Scheduler stopped gracefully")
	return nil
}
