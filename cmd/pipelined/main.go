package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joseph-ayodele/receipt-pipeline/internal/common"
	"github.com/joseph-ayodele/receipt-pipeline/internal/coordinator"
	"github.com/joseph-ayodele/receipt-pipeline/internal/event"
	"github.com/joseph-ayodele/receipt-pipeline/internal/ledger"
	"github.com/joseph-ayodele/receipt-pipeline/internal/pipeline"
	"github.com/joseph-ayodele/receipt-pipeline/internal/provider/gemini"
	"github.com/joseph-ayodele/receipt-pipeline/internal/storage"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Object store
	var (
		store    storage.Store
		notifier storage.Notifier
		fsStore  *storage.FSStore
	)
	switch cfg.Storage.Backend {
	case "memory":
		ms := storage.NewMemoryStore("receipts")
		store, notifier = ms, ms
	case "fs":
		fss, err := storage.NewFSStore("receipts", cfg.Storage.Path)
		if err != nil {
			logger.Error("failed to open fs store", "path", cfg.Storage.Path, "error", err)
			os.Exit(1)
		}
		store, notifier, fsStore = fss, fss, fss
	case "bolt":
		bs, err := storage.NewBoltStore("receipts", cfg.Storage.Path)
		if err != nil {
			logger.Error("failed to open bolt store", "path", cfg.Storage.Path, "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := bs.Close(); err != nil {
				logger.Error("failed to close store", "error", err)
			}
		}()
		store, notifier = bs, bs
	default:
		logger.Error("unknown storage backend", "backend", cfg.Storage.Backend)
		os.Exit(1)
	}

	// Attempt ledger + dead-letter channel
	db, err := ledger.Open(ctx, cfg.Ledger.Path, logger)
	if err != nil {
		logger.Error("failed to open ledger", "path", cfg.Ledger.Path, "error", err)
		os.Exit(1)
	}
	defer ledger.Close(db, logger)
	attempts := ledger.NewAttemptRepository(db, logger)
	deadLetters := ledger.NewDeadLetterRepository(db, logger)

	// Capability providers
	gem, err := gemini.NewClient(ctx, gemini.Config{
		APIKey:          cfg.Gemini.APIKey,
		ExtractionModel: cfg.Gemini.ExtractionModel,
		GenerationModel: cfg.Gemini.GenerationModel,
		Timeout:         cfg.Gemini.Timeout,
	}, logger)
	if err != nil {
		logger.Error("failed to create gemini client", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := gem.Close(); err != nil {
			logger.Error("failed to close gemini client", "error", err)
		}
	}()

	// Stages
	keys := pipeline.NewKeys(cfg.Pipeline)
	extraction := pipeline.NewExtractionStage(store, gem, keys, cfg.Pipeline.SchemaVersion, logger)
	enrichment, err := pipeline.NewEnrichmentStage(store, gem, keys, cfg.Pipeline.SchemaVersion, logger)
	if err != nil {
		logger.Error("failed to create enrichment stage", "error", err)
		os.Exit(1)
	}

	// Bus + coordinator
	bus, err := event.NewInMemoryBus(logger)
	if err != nil {
		logger.Error("failed to create bus", "error", err)
		os.Exit(1)
	}
	coord := coordinator.New(store, []pipeline.Stage{extraction, enrichment}, attempts, deadLetters, cfg.Retry, logger)
	bus.Subscribe(coord.HandleEvent)

	// Store writes feed the bus directly; with the fs backend, a watcher
	// additionally picks up uploads dropped in from outside the process.
	notifier.OnCreate(func(ev event.ObjectCreated) {
		if err := bus.Publish(ctx, ev); err != nil {
			logger.Error("failed to publish create event", "key", ev.Key, "error", err)
		}
	})
	if fsStore != nil {
		err := storage.StartWatcher(ctx, storage.WatchConfig{
			Store:       fsStore,
			WatchPrefix: cfg.Pipeline.UploadsPrefix,
			InitialScan: true,
		}, bus, logger)
		if err != nil {
			logger.Error("failed to start watcher", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("pipeline running",
		"backend", cfg.Storage.Backend,
		"uploads_prefix", cfg.Pipeline.UploadsPrefix,
		"max_attempts", cfg.Retry.MaxAttempts,
	)

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	bus.Shutdown(shutdownCtx)
}
