// Package main contains the entrypoint for the talkpipe conversation bot.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/talkpipe/talkpipe/internal/analytics"
	"github.com/talkpipe/talkpipe/internal/bot"
	"github.com/talkpipe/talkpipe/internal/config"
	"github.com/talkpipe/talkpipe/internal/conversation"
	"github.com/talkpipe/talkpipe/internal/database"
	"github.com/talkpipe/talkpipe/internal/knowledge"
	"github.com/talkpipe/talkpipe/internal/logger"
	"github.com/talkpipe/talkpipe/internal/nlu"
	"github.com/talkpipe/talkpipe/internal/orchestrator"
	"github.com/talkpipe/talkpipe/internal/personality"
	"github.com/talkpipe/talkpipe/internal/provider"
	"github.com/talkpipe/talkpipe/internal/telegram"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes all components, blocks until shutdown, and returns an
// exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.New(cfg.Log.Level, cfg.Log.JSON)
	log.Info("Logger initialized", "level", cfg.Log.Level, "json", cfg.Log.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to open database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	adapters, err := buildAdapters(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize providers", "error", err)
		return 1
	}

	pool := provider.NewPool(log, adapters, provider.PoolConfig{
		RequestTimeout:       cfg.Providers.RequestTimeout,
		RateWindow:           cfg.Providers.RateWindow,
		RateLimit:            cfg.Providers.RateLimit,
		MaxConsecutiveErrors: cfg.Providers.MaxConsecutiveErrors,
		FallbackResponses:    cfg.Personality.FallbackResponses,
	})

	contexts := conversation.NewManager(store, log, conversation.Caps{
		MaxMessages:       cfg.Conversation.MaxMessages,
		MaxIntents:        cfg.Conversation.MaxIntents,
		MaxEmotionHistory: cfg.Conversation.MaxEmotionHistory,
	}, cfg.Conversation.IdleEviction)

	profile, err := personality.FromConfig(cfg.Personality)
	if err != nil {
		log.Error("Invalid personality configuration", "error", err)
		return 1
	}

	var sheets *knowledge.SheetCache
	var knowledgeProvider knowledge.Provider = knowledge.NoopProvider{}
	if cfg.Knowledge.SnapshotURL != "" {
		sheets = knowledge.NewSheetCache(cfg.Knowledge.SnapshotURL, cfg.Knowledge.FetchTimeout, log)
		knowledgeProvider = sheets
		if err := sheets.Refresh(ctx); err != nil {
			log.Warn("Initial knowledge fetch failed, continuing with empty cache", "error", err)
		}
	}

	recorder := analytics.NewRecorder(store, log, cfg.Analytics.BufferSize)

	orch := orchestrator.New(
		contexts,
		pool,
		nlu.NewAnalyzer(pool, log),
		personality.NewTransformer(log),
		knowledgeProvider,
		recorder,
		profile,
		log,
	)

	connector, err := telegram.New(cfg.Telegram.Token, orch, profile, log)
	if err != nil {
		log.Error("Failed to create Telegram connector", "error", err)
		return 1
	}

	sched, err := bot.NewScheduler(log, bot.MaintenanceTasks(bot.MaintenanceDeps{
		Contexts:  contexts,
		Sheets:    sheets,
		Recorder:  recorder,
		Store:     store,
		Logger:    log,
		Retention: cfg.Analytics.Retention,
		SweepCron: cfg.Conversation.SweepCron,
		PollCron:  cfg.Knowledge.PollCron,
		TrimCron:  cfg.Analytics.TrimCron,
	}))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	app := bot.New(log, connector, sched, recorder)

	log.Info("Starting talkpipe...")
	runErr := app.Run(ctx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}

// buildAdapters instantiates provider adapters in the configured priority
// order.
func buildAdapters(ctx context.Context, cfg *config.Config, log *slog.Logger) ([]provider.Adapter, error) {
	adapters := make([]provider.Adapter, 0, len(cfg.Providers.Priority))
	for _, name := range cfg.Providers.Priority {
		switch name {
		case "openai":
			a, err := provider.NewOpenAI(provider.OpenAIConfig{
				Token:       cfg.Providers.OpenAI.Token,
				BaseURL:     cfg.Providers.OpenAI.BaseURL,
				Model:       cfg.Providers.OpenAI.Model,
				Temperature: cfg.Providers.OpenAI.Temperature,
				MaxTokens:   cfg.Providers.OpenAI.MaxTokens,
			}, log)
			if err != nil {
				return nil, err
			}
			adapters = append(adapters, a)
		case "gemini":
			a, err := provider.NewGemini(ctx, provider.GeminiConfig{
				APIKey:      cfg.Providers.Gemini.APIKey,
				Model:       cfg.Providers.Gemini.Model,
				Temperature: cfg.Providers.Gemini.Temperature,
				MaxTokens:   cfg.Providers.Gemini.MaxTokens,
			}, log)
			if err != nil {
				return nil, err
			}
			adapters = append(adapters, a)
		}
	}
	return adapters, nil
}
