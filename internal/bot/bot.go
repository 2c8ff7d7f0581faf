// Package bot manages the application lifecycle: the Telegram listener and
// the maintenance scheduler run concurrently until shutdown.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/talkpipe/talkpipe/internal/analytics"
	"github.com/talkpipe/talkpipe/internal/conversation"
	"github.com/talkpipe/talkpipe/internal/database"
	"github.com/talkpipe/talkpipe/internal/knowledge"
	"github.com/talkpipe/talkpipe/internal/telegram"
)

// maintenanceCron runs the database vacuum early Sunday morning.
const maintenanceCron = "0 4 * * 0"

// Bot ties the Telegram connector and the scheduler together.
type Bot struct {
	logger    *slog.Logger
	connector *telegram.Connector
	scheduler *Scheduler
	recorder  *analytics.Recorder
}

// New creates a Bot over an already-wired connector and scheduler.
func New(logger *slog.Logger, connector *telegram.Connector, scheduler *Scheduler, recorder *analytics.Recorder) *Bot {
	return &Bot{
		logger:    logger.With("component", "lifecycle"),
		connector: connector,
		scheduler: scheduler,
		recorder:  recorder,
	}
}

// Run starts all components and blocks until ctx is cancelled or a
// component fails.
func (b *Bot) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b.logger.Info("Starting Telegram listener...")
		b.connector.Start(gCtx)
		b.logger.Info("Telegram listener stopped.")

		if gCtx.Err() == nil {
			return fmt.Errorf("telegram listener stopped unexpectedly")
		}
		return nil
	})

	g.Go(func() error {
		if err := b.scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}

		<-gCtx.Done()
		b.logger.Info("Shutdown signal received, stopping scheduler...")

		if err := b.scheduler.Stop(); err != nil {
			b.logger.Error("Error stopping scheduler", "error", err)
		}
		return nil
	})

	err := g.Wait()

	b.recorder.Close()

	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Stopped due to error", "error", err)
		return err
	}

	b.logger.Info("Stopped gracefully.")
	return nil
}

// MaintenanceDeps carries everything the background jobs touch. Sheets may
// be nil when no knowledge source is configured.
type MaintenanceDeps struct {
	Contexts  *conversation.Manager
	Sheets    *knowledge.SheetCache
	Recorder  *analytics.Recorder
	Store     database.Store
	Logger    *slog.Logger
	Retention time.Duration

	SweepCron string
	PollCron  string
	TrimCron  string
}

// MaintenanceTasks builds the standard background job set: idle context
// eviction, knowledge refresh, analytics retention, and database vacuum.
func MaintenanceTasks(deps MaintenanceDeps) map[string]Task {
	log := deps.Logger.With("component", "tasks")

	tasks := map[string]Task{
		"conversation_sweep": {
			Schedule: deps.SweepCron,
			Run: func(ctx context.Context) error {
				evicted := deps.Contexts.Sweep(time.Now().UTC())
				log.InfoContext(ctx, "Swept idle conversations", "evicted", evicted)
				return nil
			},
		},
		"analytics_trim": {
			Schedule: deps.TrimCron,
			Run: func(ctx context.Context) error {
				deps.Recorder.Trim(ctx, deps.Retention)
				return nil
			},
		},
		"sql_maintenance": {
			Schedule: maintenanceCron,
			Run: func(ctx context.Context) error {
				return deps.Store.RunSQLMaintenance(ctx)
			},
		},
	}

	if deps.Sheets != nil {
		tasks["knowledge_poll"] = Task{
			Schedule: deps.PollCron,
			Run: func(ctx context.Context) error {
				return deps.Sheets.Refresh(ctx)
			},
		}
	}

	return tasks
}
