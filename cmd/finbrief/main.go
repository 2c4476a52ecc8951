package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/finbrief/finbrief/constants"
	"github.com/finbrief/finbrief/internal/common"
	"github.com/finbrief/finbrief/internal/edgar"
	"github.com/finbrief/finbrief/internal/entity"
	"github.com/finbrief/finbrief/internal/export"
	"github.com/finbrief/finbrief/internal/repository"
)

var (
	cfg    *common.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "finbrief",
	Short: "Operator CLI for the finbrief filing summarization platform",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		slog.SetDefault(logger)
		cfg = common.LoadConfig()
		return cfg.Validate()
	},
}

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Enqueue a FULL_PIPELINE job for a company (trigger=manual)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ticker, _ := cmd.Flags().GetString("ticker")
		accession, _ := cmd.Flags().GetString("accession")
		if ticker == "" {
			return fmt.Errorf("--ticker is required")
		}

		return withRepos(cmd.Context(), func(ctx context.Context, deps repos) error {
			company, err := deps.companies.GetByTicker(ctx, strings.ToUpper(ticker))
			if err != nil {
				return fmt.Errorf("load company %s: %w", ticker, err)
			}
			job, err := deps.jobs.Enqueue(ctx, constants.JobTypeFullPipeline, entity.JobPayload{
				CompanyID:       company.ID,
				Ticker:          company.Ticker,
				AccessionNumber: accession,
			}, constants.TriggerManual, cfg.Worker.MaxAttempts)
			if err != nil {
				return fmt.Errorf("enqueue: %w", err)
			}
			fmt.Printf("enqueued job %s for %s\n", job.ID, company.Ticker)
			return nil
		})
	},
}

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Register a company for scheduled EDGAR polling",
	RunE: func(cmd *cobra.Command, args []string) error {
		cik, _ := cmd.Flags().GetString("cik")
		ticker, _ := cmd.Flags().GetString("ticker")
		name, _ := cmd.Flags().GetString("name")
		if cik == "" {
			return fmt.Errorf("--cik is required")
		}

		return withRepos(cmd.Context(), func(ctx context.Context, deps repos) error {
			company, err := deps.companies.Upsert(ctx, &entity.Company{
				CIK:     edgar.PadCIK(cik),
				Ticker:  strings.ToUpper(ticker),
				Name:    name,
				Tracked: true,
			})
			if err != nil {
				return fmt.Errorf("upsert company: %w", err)
			}
			if !company.Tracked {
				if err := deps.companies.SetTracked(ctx, company.ID, true); err != nil {
					return fmt.Errorf("set tracked: %w", err)
				}
			}
			fmt.Printf("tracking %s (CIK %s)\n", company.Ticker, company.CIK)
			return nil
		})
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export filings and pipeline runs to an XLSX workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = "finbrief.xlsx"
		}

		return withRepos(cmd.Context(), func(ctx context.Context, deps repos) error {
			svc := export.NewService(deps.companies, deps.filings, deps.runs, logger)
			data, err := svc.ExportXLSX(ctx)
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Printf("wrote %s (%d bytes)\n", out, len(data))
			return nil
		})
	},
}

type repos struct {
	companies repository.CompanyRepository
	filings   repository.FilingRepository
	runs      repository.PipelineRunRepository
	jobs      repository.JobRepository
}

func withRepos(ctx context.Context, fn func(context.Context, repos) error) error {
	pool, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer repository.Close(pool, logger)

	if err := repository.Migrate(ctx, pool, logger); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return fn(ctx, repos{
		companies: repository.NewCompanyRepository(pool, logger),
		filings:   repository.NewFilingRepository(pool, logger),
		runs:      repository.NewPipelineRunRepository(pool, logger),
		jobs:      repository.NewJobRepository(pool, logger),
	})
}

func main() {
	enqueueCmd.Flags().String("ticker", "", "company ticker symbol")
	enqueueCmd.Flags().String("accession", "", "specific accession number (optional)")
	trackCmd.Flags().String("cik", "", "SEC central index key")
	trackCmd.Flags().String("ticker", "", "ticker symbol")
	trackCmd.Flags().String("name", "", "company name")
	exportCmd.Flags().String("out", "finbrief.xlsx", "output XLSX path")

	rootCmd.AddCommand(enqueueCmd, trackCmd, exportCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
