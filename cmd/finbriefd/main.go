package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/finbrief/finbrief/internal/common"
	"github.com/finbrief/finbrief/internal/repository"
	"github.com/finbrief/finbrief/internal/server"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
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

	if err := repository.HealthCheck(ctx, pool, cfg.Database.DialTimeout, logger); err != nil {
		logger.Error("database health check failed", "error", err)
		os.Exit(1)
	}
	if err := repository.Migrate(ctx, pool, logger); err != nil {
		logger.Error("failed to migrate schema", "error", err)
		os.Exit(1)
	}

	companies := repository.NewCompanyRepository(pool, logger)
	filings := repository.NewFilingRepository(pool, logger)
	runs := repository.NewPipelineRunRepository(pool, logger)
	jobs := repository.NewJobRepository(pool, logger)

	api := server.New(companies, filings, runs, jobs, cfg.Worker.MaxAttempts, logger)
	httpServer := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: api.Router(),
	}

	go func() {
		logger.Info("http server listening", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	logger.Info("stopped")
}
