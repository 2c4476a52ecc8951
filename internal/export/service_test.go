package export

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/finbrief/finbrief/constants"
	"github.com/finbrief/finbrief/internal/common"
	"github.com/finbrief/finbrief/internal/entity"
)

type fakeCompanies struct {
	companies []*entity.Company
}

func (f *fakeCompanies) Upsert(ctx context.Context, c *entity.Company) (*entity.Company, error) {
	return c, nil
}
func (f *fakeCompanies) GetByID(ctx context.Context, id uuid.UUID) (*entity.Company, error) {
	return nil, common.ErrNotFound
}
func (f *fakeCompanies) GetByTicker(ctx context.Context, ticker string) (*entity.Company, error) {
	return nil, common.ErrNotFound
}
func (f *fakeCompanies) List(ctx context.Context) ([]*entity.Company, error) {
	return f.companies, nil
}
func (f *fakeCompanies) ListTracked(ctx context.Context) ([]*entity.Company, error) {
	return f.companies, nil
}
func (f *fakeCompanies) SetTracked(ctx context.Context, id uuid.UUID, tracked bool) error {
	return nil
}
func (f *fakeCompanies) SeenAccessions(ctx context.Context, companyID uuid.UUID, form string) ([]string, error) {
	return nil, nil
}
func (f *fakeCompanies) MarkSeen(ctx context.Context, companyID uuid.UUID, form string, accessions []string) error {
	return nil
}

type fakeFilings struct {
	byCompany map[uuid.UUID][]*entity.Filing
}

func (f *fakeFilings) Upsert(ctx context.Context, filing *entity.Filing) (*entity.Filing, error) {
	return filing, nil
}
func (f *fakeFilings) GetByAccession(ctx context.Context, accession string) (*entity.Filing, error) {
	return nil, common.ErrNotFound
}
func (f *fakeFilings) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*entity.Filing, error) {
	return f.byCompany[companyID], nil
}
func (f *fakeFilings) UpsertDocument(ctx context.Context, d *entity.FilingDocument) (*entity.FilingDocument, error) {
	return d, nil
}
func (f *fakeFilings) ListDocuments(ctx context.Context, filingID uuid.UUID) ([]*entity.FilingDocument, error) {
	return nil, nil
}
func (f *fakeFilings) UpsertSummary(ctx context.Context, s *entity.Summary) (*entity.Summary, error) {
	return s, nil
}
func (f *fakeFilings) ListSummariesByFiling(ctx context.Context, filingID uuid.UUID) ([]*entity.Summary, error) {
	return nil, nil
}
func (f *fakeFilings) ListSummariesByCompany(ctx context.Context, companyID uuid.UUID, kind constants.SummaryKind) ([]*entity.Summary, error) {
	return nil, nil
}

type fakeRuns struct {
	byCompany map[uuid.UUID][]*entity.PipelineRun
}

func (f *fakeRuns) Start(ctx context.Context, jobID, companyID uuid.UUID, trigger constants.Trigger) (*entity.PipelineRun, error) {
	return nil, common.ErrInternal
}
func (f *fakeRuns) RecordStep(ctx context.Context, runID uuid.UUID, succeeded bool, stepErr string) error {
	return nil
}
func (f *fakeRuns) Finish(ctx context.Context, runID uuid.UUID, status constants.RunStatus) error {
	return nil
}
func (f *fakeRuns) Get(ctx context.Context, runID uuid.UUID) (*entity.PipelineRun, error) {
	return nil, common.ErrNotFound
}
func (f *fakeRuns) List(ctx context.Context, companyID *uuid.UUID, limit int) ([]*entity.PipelineRun, error) {
	if companyID == nil {
		return nil, nil
	}
	return f.byCompany[*companyID], nil
}

func TestExportXLSX(t *testing.T) {
	company := &entity.Company{ID: uuid.New(), CIK: "0000320193", Ticker: "AAPL", Name: "Apple Inc."}
	filing := &entity.Filing{
		ID:              uuid.New(),
		CompanyID:       company.ID,
		AccessionNumber: "0000320193-24-000123",
		Form:            "10-K",
		FiledAt:         time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC),
		FiscalYear:      2024,
	}
	finished := time.Date(2024, 11, 2, 12, 0, 0, 0, time.UTC)
	run := &entity.PipelineRun{
		ID:             uuid.New(),
		CompanyID:      company.ID,
		Status:         constants.RunStatusCompleted,
		Trigger:        constants.TriggerScheduled,
		StepsAttempted: 5,
		StepsSucceeded: 5,
		StartedAt:      finished.Add(-time.Minute),
		FinishedAt:     &finished,
	}

	svc := NewService(
		&fakeCompanies{companies: []*entity.Company{company}},
		&fakeFilings{byCompany: map[uuid.UUID][]*entity.Filing{company.ID: {filing}}},
		&fakeRuns{byCompany: map[uuid.UUID][]*entity.PipelineRun{company.ID: {run}}},
		nil,
	)

	data, err := svc.ExportXLSX(context.Background())
	if err != nil {
		t.Fatalf("ExportXLSX: %v", err)
	}

	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer wb.Close()

	checks := []struct {
		sheet string
		cell  string
		want  string
	}{
		{"Filings", "A1", "Ticker"},
		{"Filings", "A2", "AAPL"},
		{"Filings", "C2", "10-K"},
		{"Filings", "D2", "0000320193-24-000123"},
		{"Filings", "E2", "2024-11-01"},
		{"Pipeline Runs", "A1", "Ticker"},
		{"Pipeline Runs", "C2", "COMPLETED"},
		{"Pipeline Runs", "D2", "scheduled"},
		{"Pipeline Runs", "E2", "5"},
	}
	for _, c := range checks {
		got, err := wb.GetCellValue(c.sheet, c.cell)
		if err != nil {
			t.Fatalf("GetCellValue(%s!%s): %v", c.sheet, c.cell, err)
		}
		if got != c.want {
			t.Errorf("%s!%s = %q, want %q", c.sheet, c.cell, got, c.want)
		}
	}
}

func TestExportXLSXEmpty(t *testing.T) {
	svc := NewService(&fakeCompanies{}, &fakeFilings{}, &fakeRuns{}, nil)
	data, err := svc.ExportXLSX(context.Background())
	if err != nil {
		t.Fatalf("ExportXLSX: %v", err)
	}
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer wb.Close()
	for _, sheet := range []string{"Filings", "Pipeline Runs"} {
		if idx, err := wb.GetSheetIndex(sheet); err != nil || idx < 0 {
			t.Errorf("sheet %q missing (idx %d, err %v)", sheet, idx, err)
		}
	}
}
