package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"

	"github.com/compasshq/compass-backend/internal/config"
	"github.com/compasshq/compass-backend/internal/database"
	"github.com/compasshq/compass-backend/internal/document"
	"github.com/compasshq/compass-backend/internal/extract"
	"github.com/compasshq/compass-backend/internal/ocr"
	"github.com/compasshq/compass-backend/internal/pipeline"
	"github.com/compasshq/compass-backend/internal/queue"
	"github.com/compasshq/compass-backend/internal/queue/workers"
	"github.com/compasshq/compass-backend/internal/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store := storage.NewSupabaseStorage(cfg.Storage.SupabaseURL, cfg.Storage.ServiceKey)
	queueClient := queue.NewClient(cfg.Redis)
	defer queueClient.Close()

	docSvc := document.NewService(db, store, queueClient, cfg.Storage.Bucket)
	ocrClient := ocr.NewClient(cfg.OCR.BaseURL, cfg.OCR.Timeout)
	extractor := extract.NewExtractor(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model, cfg.OpenAI.Timeout)
	runner := pipeline.NewRunner(docSvc, ocrClient, extractor)

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
		},
	)

	registry := queue.NewHandlersRegistry()
	docWorker := workers.NewDocumentWorker(docSvc, store, runner)
	registry.Register(queue.TypeDocumentProcess, asynq.HandlerFunc(docWorker.ProcessTask))

	slog.Info("starting worker", "concurrency", 10)
	if err := srv.Run(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
