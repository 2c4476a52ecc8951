package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/finbrief/finbrief/internal/common"
	"github.com/finbrief/finbrief/internal/edgar"
	"github.com/finbrief/finbrief/internal/repository"
	"github.com/finbrief/finbrief/internal/scheduler"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
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
	jobs := repository.NewJobRepository(pool, logger)
	edgarClient := edgar.NewClient(cfg.Edgar, logger)

	s := scheduler.New(companies, jobs, edgarClient, cfg.Scheduler, cfg.Worker.MaxAttempts, logger)
	if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler exited", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}
