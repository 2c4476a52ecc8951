package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/finbrief/finbrief/constants"
	"github.com/finbrief/finbrief/internal/common"
	"github.com/finbrief/finbrief/internal/entity"
	"github.com/finbrief/finbrief/internal/llm"
)

type fakeRuns struct {
	run      *entity.PipelineRun
	finished constants.RunStatus
}

func (f *fakeRuns) Start(ctx context.Context, jobID, companyID uuid.UUID, trigger constants.Trigger) (*entity.PipelineRun, error) {
	f.run = &entity.PipelineRun{
		ID:        uuid.New(),
		JobID:     jobID,
		CompanyID: companyID,
		Status:    constants.RunStatusRunning,
		Trigger:   trigger,
		StartedAt: time.Now(),
	}
	return f.run, nil
}

func (f *fakeRuns) RecordStep(ctx context.Context, runID uuid.UUID, succeeded bool, stepErr string) error {
	f.run.StepsAttempted++
	if succeeded {
		f.run.StepsSucceeded++
	} else {
		f.run.StepsFailed++
		f.run.LastError = stepErr
	}
	return nil
}

func (f *fakeRuns) Finish(ctx context.Context, runID uuid.UUID, status constants.RunStatus) error {
	f.finished = status
	f.run.Status = status
	return nil
}

func (f *fakeRuns) Get(ctx context.Context, runID uuid.UUID) (*entity.PipelineRun, error) {
	return f.run, nil
}

func (f *fakeRuns) List(ctx context.Context, companyID *uuid.UUID, limit int) ([]*entity.PipelineRun, error) {
	return []*entity.PipelineRun{f.run}, nil
}

type fakeCompanies struct {
	byID map[uuid.UUID]*entity.Company
}

func (f *fakeCompanies) Upsert(ctx context.Context, c *entity.Company) (*entity.Company, error) {
	f.byID[c.ID] = c
	return c, nil
}

func (f *fakeCompanies) GetByID(ctx context.Context, id uuid.UUID) (*entity.Company, error) {
	if c, ok := f.byID[id]; ok {
		return c, nil
	}
	return nil, common.ErrNotFound
}

func (f *fakeCompanies) GetByTicker(ctx context.Context, ticker string) (*entity.Company, error) {
	return nil, common.ErrNotFound
}
func (f *fakeCompanies) List(ctx context.Context) ([]*entity.Company, error)        { return nil, nil }
func (f *fakeCompanies) ListTracked(ctx context.Context) ([]*entity.Company, error) { return nil, nil }
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
	filings   map[uuid.UUID]*entity.Filing
	documents map[uuid.UUID][]*entity.FilingDocument // by filing
	summaries []*entity.Summary
}

func newFakeFilings() *fakeFilings {
	return &fakeFilings{
		filings:   map[uuid.UUID]*entity.Filing{},
		documents: map[uuid.UUID][]*entity.FilingDocument{},
	}
}

func (f *fakeFilings) Upsert(ctx context.Context, filing *entity.Filing) (*entity.Filing, error) {
	if filing.ID == uuid.Nil {
		filing.ID = uuid.New()
	}
	f.filings[filing.ID] = filing
	return filing, nil
}

func (f *fakeFilings) GetByAccession(ctx context.Context, accession string) (*entity.Filing, error) {
	for _, filing := range f.filings {
		if filing.AccessionNumber == accession {
			return filing, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeFilings) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*entity.Filing, error) {
	var out []*entity.Filing
	for _, filing := range f.filings {
		if filing.CompanyID == companyID {
			out = append(out, filing)
		}
	}
	return out, nil
}

func (f *fakeFilings) UpsertDocument(ctx context.Context, d *entity.FilingDocument) (*entity.FilingDocument, error) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	f.documents[d.FilingID] = append(f.documents[d.FilingID], d)
	return d, nil
}

func (f *fakeFilings) ListDocuments(ctx context.Context, filingID uuid.UUID) ([]*entity.FilingDocument, error) {
	return f.documents[filingID], nil
}

func (f *fakeFilings) UpsertSummary(ctx context.Context, s *entity.Summary) (*entity.Summary, error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	f.summaries = append(f.summaries, s)
	return s, nil
}

func (f *fakeFilings) ListSummariesByFiling(ctx context.Context, filingID uuid.UUID) ([]*entity.Summary, error) {
	var out []*entity.Summary
	for _, s := range f.summaries {
		if s.FilingID != nil && *s.FilingID == filingID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeFilings) ListSummariesByCompany(ctx context.Context, companyID uuid.UUID, kind constants.SummaryKind) ([]*entity.Summary, error) {
	var out []*entity.Summary
	for _, s := range f.summaries {
		if s.CompanyID == companyID && s.Kind == kind {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeFilings) countSummaries(kind constants.SummaryKind) int {
	n := 0
	for _, s := range f.summaries {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

type fakeIngestor struct {
	company    *entity.Company
	companyErr error
	filings    []*entity.Filing
	filingErr  error
}

func (f *fakeIngestor) IngestCompany(ctx context.Context, companyID uuid.UUID) (*entity.Company, error) {
	return f.company, f.companyErr
}

func (f *fakeIngestor) IngestFiling(ctx context.Context, company *entity.Company, accessionNumber string) ([]*entity.Filing, error) {
	return f.filings, f.filingErr
}

type fakeSummarizer struct {
	err   error
	calls []llm.SummaryRequest
}

func (f *fakeSummarizer) Summarize(ctx context.Context, req llm.SummaryRequest) (llm.SummaryFields, []byte, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return llm.SummaryFields{}, nil, f.err
	}
	return llm.SummaryFields{
		Headline:  "Revenue grew on services strength",
		Body:      "Body text for " + string(req.Kind),
		KeyPoints: []string{"point one", "point two"},
	}, []byte(`{}`), nil
}

func fixtureCompany() *entity.Company {
	return &entity.Company{ID: uuid.New(), CIK: "0000320193", Ticker: "AAPL", Name: "Apple Inc."}
}

func fixtureFiling(companyID uuid.UUID) *entity.Filing {
	return &entity.Filing{
		ID:              uuid.New(),
		CompanyID:       companyID,
		AccessionNumber: "0000320193-24-000123",
		Form:            "10-K",
		FiledAt:         time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC),
		FiscalYear:      2024,
	}
}

func fixtureJob(companyID uuid.UUID) *entity.Job {
	return &entity.Job{
		ID:      uuid.New(),
		JobType: constants.JobTypeFullPipeline,
		Payload: entity.JobPayload{CompanyID: companyID, Ticker: "AAPL"},
		Trigger: constants.TriggerScheduled,
	}
}

func TestHandleCompletedRun(t *testing.T) {
	company := fixtureCompany()
	filings := newFakeFilings()
	filing := fixtureFiling(company.ID)
	filings.filings[filing.ID] = filing
	filings.documents[filing.ID] = []*entity.FilingDocument{
		{ID: uuid.New(), FilingID: filing.ID, Section: constants.SectionRiskFactors, Content: "risk text"},
		{ID: uuid.New(), FilingID: filing.ID, Section: constants.SectionMDA, Content: "mda text"},
	}

	runs := &fakeRuns{}
	companies := &fakeCompanies{byID: map[uuid.UUID]*entity.Company{company.ID: company}}
	ingestor := &fakeIngestor{company: company, filings: []*entity.Filing{filing}}
	summarizer := &fakeSummarizer{}

	h := NewHandler(runs, companies, filings, ingestor, summarizer, "gpt-4o-mini", nil)
	if err := h.Handle(context.Background(), fixtureJob(company.ID)); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if runs.finished != constants.RunStatusCompleted {
		t.Errorf("run status = %s, want COMPLETED", runs.finished)
	}
	if runs.run.StepsAttempted != 5 || runs.run.StepsFailed != 0 {
		t.Errorf("steps = %d attempted / %d failed, want 5 / 0",
			runs.run.StepsAttempted, runs.run.StepsFailed)
	}
	if got := filings.countSummaries(constants.SummaryKindDocument); got != 2 {
		t.Errorf("document summaries = %d, want 2", got)
	}
	if got := filings.countSummaries(constants.SummaryKindAggregate); got != 1 {
		t.Errorf("aggregate summaries = %d, want 1", got)
	}
	if got := filings.countSummaries(constants.SummaryKindFrontpage); got != 1 {
		t.Errorf("frontpage summaries = %d, want 1", got)
	}
}

func TestHandleFailedRunReturnsError(t *testing.T) {
	companyID := uuid.New()
	runs := &fakeRuns{}
	companies := &fakeCompanies{byID: map[uuid.UUID]*entity.Company{}}
	ingestor := &fakeIngestor{companyErr: common.Permanentf("company %s not found", companyID)}
	summarizer := &fakeSummarizer{}

	h := NewHandler(runs, companies, newFakeFilings(), ingestor, summarizer, "gpt-4o-mini", nil)
	err := h.Handle(context.Background(), fixtureJob(companyID))
	if err == nil {
		t.Fatal("Handle should report an error for a FAILED run")
	}
	if !strings.Contains(err.Error(), "failed") {
		t.Errorf("error = %v", err)
	}
	if runs.finished != constants.RunStatusFailed {
		t.Errorf("run status = %s, want FAILED", runs.finished)
	}
	if runs.run.StepsSucceeded != 0 {
		t.Errorf("StepsSucceeded = %d, want 0", runs.run.StepsSucceeded)
	}
	if len(summarizer.calls) != 0 {
		t.Errorf("summarizer called %d times with nothing to summarize", len(summarizer.calls))
	}
}

func TestHandlePartialRunIsJobSuccess(t *testing.T) {
	// Ingestion fails entirely, but summaries can still be generated from
	// what earlier runs stored: the run is PARTIAL and the job succeeds.
	company := fixtureCompany()
	filings := newFakeFilings()
	filing := fixtureFiling(company.ID)
	filings.filings[filing.ID] = filing
	filings.documents[filing.ID] = []*entity.FilingDocument{
		{ID: uuid.New(), FilingID: filing.ID, Section: constants.SectionBusiness, Content: "business text"},
	}

	runs := &fakeRuns{}
	companies := &fakeCompanies{byID: map[uuid.UUID]*entity.Company{company.ID: company}}
	ingestor := &fakeIngestor{
		companyErr: common.Transientf("edgar status 503"),
		filingErr:  common.Transientf("edgar status 503"),
	}
	summarizer := &fakeSummarizer{}

	h := NewHandler(runs, companies, filings, ingestor, summarizer, "gpt-4o-mini", nil)
	if err := h.Handle(context.Background(), fixtureJob(company.ID)); err != nil {
		t.Fatalf("PARTIAL run must not be reported as job failure, got %v", err)
	}

	if runs.finished != constants.RunStatusPartial {
		t.Errorf("run status = %s, want PARTIAL", runs.finished)
	}
	if runs.run.StepsFailed != 2 || runs.run.StepsSucceeded != 3 {
		t.Errorf("steps = %d succeeded / %d failed, want 3 / 2",
			runs.run.StepsSucceeded, runs.run.StepsFailed)
	}
}

func TestHandleReentryUsesStoredSummaries(t *testing.T) {
	// A rerun with no documents at all still completes the aggregate and
	// frontpage steps from stored document summaries.
	company := fixtureCompany()
	filings := newFakeFilings()
	filings.summaries = append(filings.summaries, &entity.Summary{
		ID:         uuid.New(),
		CompanyID:  company.ID,
		Kind:       constants.SummaryKindDocument,
		Section:    constants.SectionRiskFactors,
		FiscalYear: 2024,
		Body:       "stored risk summary",
	})

	runs := &fakeRuns{}
	companies := &fakeCompanies{byID: map[uuid.UUID]*entity.Company{company.ID: company}}
	ingestor := &fakeIngestor{company: company} // filing ingest returns nothing
	summarizer := &fakeSummarizer{}

	h := NewHandler(runs, companies, filings, ingestor, summarizer, "gpt-4o-mini", nil)
	if err := h.Handle(context.Background(), fixtureJob(company.ID)); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if runs.finished != constants.RunStatusPartial {
		t.Errorf("run status = %s, want PARTIAL (document step had no inputs)", runs.finished)
	}
	if got := filings.countSummaries(constants.SummaryKindAggregate); got != 1 {
		t.Errorf("aggregate summaries = %d, want 1 from stored documents", got)
	}
	if got := filings.countSummaries(constants.SummaryKindFrontpage); got != 1 {
		t.Errorf("frontpage summaries = %d, want 1", got)
	}
}

func TestHandleNamedAccession(t *testing.T) {
	company := fixtureCompany()
	filings := newFakeFilings()
	target := fixtureFiling(company.ID)
	other := fixtureFiling(company.ID)
	other.AccessionNumber = "0000320193-23-000099"
	other.FiscalYear = 2023
	filings.filings[target.ID] = target
	filings.filings[other.ID] = other
	filings.documents[target.ID] = []*entity.FilingDocument{
		{ID: uuid.New(), FilingID: target.ID, Section: constants.SectionMDA, Content: "mda"},
	}
	filings.documents[other.ID] = []*entity.FilingDocument{
		{ID: uuid.New(), FilingID: other.ID, Section: constants.SectionMDA, Content: "old mda"},
	}

	runs := &fakeRuns{}
	companies := &fakeCompanies{byID: map[uuid.UUID]*entity.Company{company.ID: company}}
	ingestor := &fakeIngestor{company: company, filings: []*entity.Filing{target}}
	summarizer := &fakeSummarizer{}

	job := fixtureJob(company.ID)
	job.Payload.AccessionNumber = target.AccessionNumber

	h := NewHandler(runs, companies, filings, ingestor, summarizer, "gpt-4o-mini", nil)
	if err := h.Handle(context.Background(), job); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if got := filings.countSummaries(constants.SummaryKindDocument); got != 1 {
		t.Errorf("document summaries = %d, want only the named accession's", got)
	}
	for _, s := range filings.summaries {
		if s.Kind == constants.SummaryKindDocument && s.FilingID != nil && *s.FilingID != target.ID {
			t.Errorf("summarized filing %s, want %s", *s.FilingID, target.ID)
		}
	}
}

func TestHandleSummarizerOutage(t *testing.T) {
	company := fixtureCompany()
	filings := newFakeFilings()
	filing := fixtureFiling(company.ID)
	filings.filings[filing.ID] = filing
	filings.documents[filing.ID] = []*entity.FilingDocument{
		{ID: uuid.New(), FilingID: filing.ID, Section: constants.SectionMDA, Content: "mda"},
	}

	runs := &fakeRuns{}
	companies := &fakeCompanies{byID: map[uuid.UUID]*entity.Company{company.ID: company}}
	ingestor := &fakeIngestor{company: company, filings: []*entity.Filing{filing}}
	summarizer := &fakeSummarizer{err: common.Transientf("openai status 429")}

	h := NewHandler(runs, companies, filings, ingestor, summarizer, "gpt-4o-mini", nil)
	if err := h.Handle(context.Background(), fixtureJob(company.ID)); err != nil {
		t.Fatalf("ingest succeeded, so the run is PARTIAL and the job passes: %v", err)
	}
	if runs.finished != constants.RunStatusPartial {
		t.Errorf("run status = %s, want PARTIAL", runs.finished)
	}
	if got := filings.countSummaries(constants.SummaryKindDocument); got != 0 {
		t.Errorf("document summaries = %d, want 0 during outage", got)
	}
}
