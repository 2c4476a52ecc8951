package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/finbrief/finbrief/constants"
	"github.com/finbrief/finbrief/internal/common"
	"github.com/finbrief/finbrief/internal/edgar"
	"github.com/finbrief/finbrief/internal/ingest"
	"github.com/finbrief/finbrief/internal/llm/openai"
	"github.com/finbrief/finbrief/internal/pipeline"
	"github.com/finbrief/finbrief/internal/repository"
	"github.com/finbrief/finbrief/internal/worker"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateLLM(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateEdgar(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer repository.Close(pool, logger)

	if err := repository.Migrate(ctx, pool, logger); err != nil {
		logger.Error("failed to migrate schema", "error", err)
		os.Exit(1)
	}

	companies := repository.NewCompanyRepository(pool, logger)
	filings := repository.NewFilingRepository(pool, logger)
	runs := repository.NewPipelineRunRepository(pool, logger)
	jobs := repository.NewJobRepository(pool, logger)

	edgarClient := edgar.NewClient(cfg.Edgar, logger)
	summarizer := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)
	ingestor := ingest.NewService(edgarClient, companies, filings, cfg.Scheduler.EnabledForms, cfg.Scheduler.LookbackDays, logger)
	handler := pipeline.NewHandler(runs, companies, filings, ingestor, summarizer, cfg.LLM.Model, logger)

	registry := worker.NewRegistry()
	if err := registry.Register(constants.JobTypeFullPipeline, handler); err != nil {
		logger.Error("handler registration failed", "error", err)
		os.Exit(1)
	}

	w := worker.New(jobs, registry, cfg.Worker, logger)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker exited", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}
