package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/finbrief/finbrief/internal/repository"
)

// Service is a tiny façade over repositories that produces XLSX bytes for
// operator reports.
type Service struct {
	companies repository.CompanyRepository
	filings   repository.FilingRepository
	runs      repository.PipelineRunRepository
	logger    *slog.Logger
}

func NewService(companies repository.CompanyRepository, filings repository.FilingRepository, runs repository.PipelineRunRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{companies: companies, filings: filings, runs: runs, logger: logger}
}

// ExportXLSX returns a workbook with one Filings sheet and one Pipeline Runs
// sheet covering every stored company.
func (s *Service) ExportXLSX(ctx context.Context) ([]byte, error) {
	start := time.Now()

	companies, err := s.companies.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("query companies: %w", err)
	}

	f := excelize.NewFile()
	const filingsSheet = "Filings"
	const runsSheet = "Pipeline Runs"

	f.SetSheetName(f.GetSheetName(0), filingsSheet)
	if _, err := f.NewSheet(runsSheet); err != nil {
		return nil, fmt.Errorf("create runs sheet: %w", err)
	}

	filingHeaders := []string{"Ticker", "CIK", "Form", "Accession Number", "Filed", "Fiscal Year"}
	for i, h := range filingHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(filingsSheet, cell, h)
	}
	runHeaders := []string{"Ticker", "Run ID", "Status", "Trigger", "Attempted", "Succeeded", "Failed", "Started", "Finished"}
	for i, h := range runHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(runsSheet, cell, h)
	}

	filingRow := 2
	runRow := 2
	for _, company := range companies {
		filings, err := s.filings.ListByCompany(ctx, company.ID)
		if err != nil {
			return nil, fmt.Errorf("query filings for %s: %w", company.Ticker, err)
		}
		for _, filing := range filings {
			values := []any{
				company.Ticker, company.CIK, filing.Form, filing.AccessionNumber,
				filing.FiledAt.Format("2006-01-02"), filing.FiscalYear,
			}
			for i, v := range values {
				cell, _ := excelize.CoordinatesToCellName(i+1, filingRow)
				_ = f.SetCellValue(filingsSheet, cell, v)
			}
			filingRow++
		}

		runs, err := s.runs.List(ctx, &company.ID, 0)
		if err != nil {
			return nil, fmt.Errorf("query runs for %s: %w", company.Ticker, err)
		}
		for _, run := range runs {
			finished := ""
			if run.FinishedAt != nil {
				finished = run.FinishedAt.Format(time.RFC3339)
			}
			values := []any{
				company.Ticker, run.ID.String(), string(run.Status), string(run.Trigger),
				run.StepsAttempted, run.StepsSucceeded, run.StepsFailed,
				run.StartedAt.Format(time.RFC3339), finished,
			}
			for i, v := range values {
				cell, _ := excelize.CoordinatesToCellName(i+1, runRow)
				_ = f.SetCellValue(runsSheet, cell, v)
			}
			runRow++
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	s.logger.Info("export complete",
		"companies", len(companies),
		"filing_rows", filingRow-2,
		"run_rows", runRow-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
