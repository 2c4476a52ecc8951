package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/finbrief/finbrief/constants"
	"github.com/finbrief/finbrief/internal/common"
	"github.com/finbrief/finbrief/internal/entity"
	"github.com/finbrief/finbrief/internal/llm"
	"github.com/finbrief/finbrief/internal/repository"
)

// Ingestor is the slice of the ingestion service the pipeline consumes.
type Ingestor interface {
	IngestCompany(ctx context.Context, companyID uuid.UUID) (*entity.Company, error)
	IngestFiling(ctx context.Context, company *entity.Company, accessionNumber string) ([]*entity.Filing, error)
}

// Handler executes FULL_PIPELINE jobs: company ingest, filing ingest, then
// the three summary generation levels, tracking progress on a PipelineRun.
//
// Steps run in order but are recovered independently: an ingest failure does
// not block summarization when the inputs already exist from a prior run,
// and a step whose inputs are genuinely missing counts as failed rather
// than aborting the run.
type Handler struct {
	runs       repository.PipelineRunRepository
	companies  repository.CompanyRepository
	filings    repository.FilingRepository
	ingestor   Ingestor
	summarizer llm.Summarizer
	model      string
	log        *slog.Logger
}

func NewHandler(
	runs repository.PipelineRunRepository,
	companies repository.CompanyRepository,
	filings repository.FilingRepository,
	ingestor Ingestor,
	summarizer llm.Summarizer,
	model string,
	log *slog.Logger,
) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		runs:       runs,
		companies:  companies,
		filings:    filings,
		ingestor:   ingestor,
		summarizer: summarizer,
		model:      model,
		log:        log,
	}
}

// stepOutcome accumulates per-run progress locally, mirroring the counters
// persisted through RecordStep.
type stepOutcome struct {
	attempted int
	succeeded int
	failed    int
	firstErr  error
}

func (o *stepOutcome) record(err error) {
	o.attempted++
	if err == nil {
		o.succeeded++
		return
	}
	o.failed++
	if o.firstErr == nil {
		o.firstErr = err
	}
}

// Handle runs the full pipeline for one job. The returned error is nil for
// COMPLETED and PARTIAL runs; only a FAILED run (or a failure before the
// run exists) reports an error to the worker, so jobs that made real
// progress are not retried endlessly.
func (h *Handler) Handle(ctx context.Context, job *entity.Job) error {
	run, err := h.runs.Start(ctx, job.ID, job.Payload.CompanyID, job.Trigger)
	if err != nil {
		return common.WrapError(err, "start pipeline run")
	}

	var outcome stepOutcome

	// Step 1: company ingestion.
	company, err := h.ingestor.IngestCompany(ctx, job.Payload.CompanyID)
	h.step(ctx, run.ID, "company_ingest", &outcome, err)
	if company == nil {
		// Fall back to stored metadata so one EDGAR hiccup does not void
		// the whole run.
		company, _ = h.companies.GetByID(ctx, job.Payload.CompanyID)
	}

	// Step 2: filing ingestion.
	var ingested []*entity.Filing
	if company == nil {
		h.step(ctx, run.ID, "filing_ingest", &outcome, common.Permanentf("company %s not available", job.Payload.CompanyID))
	} else {
		ingested, err = h.ingestor.IngestFiling(ctx, company, job.Payload.AccessionNumber)
		h.step(ctx, run.ID, "filing_ingest", &outcome, err)
	}

	// Steps 3-5 read whatever is on file, ingested this run or earlier.
	filings := h.resolveFilings(ctx, job, company, ingested)

	docSummaries := h.documentStep(ctx, run.ID, &outcome, company, filings)
	aggregates := h.aggregateStep(ctx, run.ID, &outcome, company, docSummaries)
	h.frontpageStep(ctx, run.ID, &outcome, company, aggregates)

	status := DeriveRunStatus(outcome.attempted, outcome.succeeded, outcome.failed)
	if err := h.runs.Finish(ctx, run.ID, status); err != nil {
		return common.WrapError(err, "finish pipeline run")
	}
	h.log.Info("pipeline.done",
		"run_id", run.ID,
		"job_id", job.ID,
		"status", status,
		"attempted", outcome.attempted,
		"succeeded", outcome.succeeded,
		"failed", outcome.failed,
	)

	if status == constants.RunStatusFailed {
		if outcome.firstErr != nil {
			return fmt.Errorf("pipeline run %s failed: %w", run.ID, outcome.firstErr)
		}
		return fmt.Errorf("pipeline run %s failed", run.ID)
	}
	return nil
}

// step records one sub-step result both locally and on the run row.
func (h *Handler) step(ctx context.Context, runID uuid.UUID, name string, outcome *stepOutcome, err error) {
	outcome.record(err)
	msg := ""
	if err != nil {
		msg = err.Error()
		h.log.Error("pipeline.step.failed", "run_id", runID, "step", name, "error", err)
	} else {
		h.log.Info("pipeline.step.ok", "run_id", runID, "step", name)
	}
	if rerr := h.runs.RecordStep(ctx, runID, err == nil, msg); rerr != nil {
		h.log.Error("pipeline.step.record_failed", "run_id", runID, "step", name, "error", rerr)
	}
}

// resolveFilings picks the filings the summary steps operate on: the one
// named by the payload, else whatever this run ingested, else everything
// already stored for the company.
func (h *Handler) resolveFilings(ctx context.Context, job *entity.Job, company *entity.Company, ingested []*entity.Filing) []*entity.Filing {
	if job.Payload.AccessionNumber != "" {
		f, err := h.filings.GetByAccession(ctx, job.Payload.AccessionNumber)
		if err != nil {
			return ingested
		}
		return []*entity.Filing{f}
	}
	if len(ingested) > 0 {
		return ingested
	}
	if company == nil {
		return nil
	}
	stored, err := h.filings.ListByCompany(ctx, company.ID)
	if err != nil {
		return nil
	}
	return stored
}

// documentStep generates one summary per qualifying section document.
func (h *Handler) documentStep(ctx context.Context, runID uuid.UUID, outcome *stepOutcome, company *entity.Company, filings []*entity.Filing) []*entity.Summary {
	if company == nil || len(filings) == 0 {
		h.step(ctx, runID, "document_summaries", outcome, common.Permanentf("no filings available to summarize"))
		return nil
	}

	var (
		generated []*entity.Summary
		stepErr   error
	)
	for _, filing := range filings {
		docs, err := h.filings.ListDocuments(ctx, filing.ID)
		if err != nil {
			stepErr = err
			continue
		}
		for _, doc := range docs {
			fields, _, err := h.summarizer.Summarize(ctx, llm.SummaryRequest{
				Kind:        constants.SummaryKindDocument,
				CompanyName: company.Name,
				Ticker:      company.Ticker,
				Form:        filing.Form,
				FiscalYear:  filing.FiscalYear,
				Section:     doc.Section,
				SourceText:  doc.Content,
			})
			if err != nil {
				stepErr = err
				continue
			}
			summary, err := h.filings.UpsertSummary(ctx, &entity.Summary{
				CompanyID:  company.ID,
				FilingID:   &filing.ID,
				DocumentID: &doc.ID,
				Kind:       constants.SummaryKindDocument,
				Section:    doc.Section,
				FiscalYear: filing.FiscalYear,
				Headline:   fields.Headline,
				Body:       fields.Body,
				KeyPoints:  fields.KeyPoints,
				Model:      h.model,
			})
			if err != nil {
				stepErr = err
				continue
			}
			generated = append(generated, summary)
		}
	}
	if len(generated) == 0 && stepErr == nil {
		stepErr = common.Permanentf("no section documents available to summarize")
	}
	if len(generated) > 0 {
		// Partial document coverage still counts as step success; the run
		// made durable progress and re-entry will fill the gaps.
		if stepErr != nil {
			h.log.Warn("pipeline.document_summaries.partial", "run_id", runID, "generated", len(generated), "error", stepErr)
		}
		h.step(ctx, runID, "document_summaries", outcome, nil)
	} else {
		h.step(ctx, runID, "document_summaries", outcome, stepErr)
	}
	return generated
}

// aggregateStep combines document summaries into one summary per fiscal year.
func (h *Handler) aggregateStep(ctx context.Context, runID uuid.UUID, outcome *stepOutcome, company *entity.Company, docSummaries []*entity.Summary) []*entity.Summary {
	if company == nil {
		h.step(ctx, runID, "aggregate_summaries", outcome, common.Permanentf("no company available to aggregate"))
		return nil
	}
	if len(docSummaries) == 0 {
		// Idempotent re-entry: use document summaries from prior runs.
		stored, err := h.filings.ListSummariesByCompany(ctx, company.ID, constants.SummaryKindDocument)
		if err == nil {
			docSummaries = stored
		}
	}
	if len(docSummaries) == 0 {
		h.step(ctx, runID, "aggregate_summaries", outcome, common.Permanentf("no document summaries available to aggregate"))
		return nil
	}

	byYear := map[int][]*entity.Summary{}
	for _, s := range docSummaries {
		byYear[s.FiscalYear] = append(byYear[s.FiscalYear], s)
	}
	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))

	var (
		generated []*entity.Summary
		stepErr   error
	)
	for _, year := range years {
		sources := make([]llm.SourceSummary, 0, len(byYear[year]))
		for _, s := range byYear[year] {
			sources = append(sources, llm.SourceSummary{
				Label: fmt.Sprintf("FY%d %s", s.FiscalYear, s.Section),
				Text:  s.Body,
			})
		}
		fields, _, err := h.summarizer.Summarize(ctx, llm.SummaryRequest{
			Kind:        constants.SummaryKindAggregate,
			CompanyName: company.Name,
			Ticker:      company.Ticker,
			FiscalYear:  year,
			Sources:     sources,
		})
		if err != nil {
			stepErr = err
			continue
		}
		summary, err := h.filings.UpsertSummary(ctx, &entity.Summary{
			CompanyID:  company.ID,
			Kind:       constants.SummaryKindAggregate,
			FiscalYear: year,
			Headline:   fields.Headline,
			Body:       fields.Body,
			KeyPoints:  fields.KeyPoints,
			Model:      h.model,
		})
		if err != nil {
			stepErr = err
			continue
		}
		generated = append(generated, summary)
	}
	if len(generated) > 0 {
		h.step(ctx, runID, "aggregate_summaries", outcome, nil)
	} else {
		h.step(ctx, runID, "aggregate_summaries", outcome, stepErr)
	}
	return generated
}

// frontpageStep writes the single top-level company summary.
func (h *Handler) frontpageStep(ctx context.Context, runID uuid.UUID, outcome *stepOutcome, company *entity.Company, aggregates []*entity.Summary) {
	if company == nil {
		h.step(ctx, runID, "frontpage_summary", outcome, common.Permanentf("no company available for frontpage"))
		return
	}
	if len(aggregates) == 0 {
		stored, err := h.filings.ListSummariesByCompany(ctx, company.ID, constants.SummaryKindAggregate)
		if err == nil {
			aggregates = stored
		}
	}
	if len(aggregates) == 0 {
		h.step(ctx, runID, "frontpage_summary", outcome, common.Permanentf("no aggregate summaries available for frontpage"))
		return
	}

	sources := make([]llm.SourceSummary, 0, len(aggregates))
	for _, s := range aggregates {
		sources = append(sources, llm.SourceSummary{
			Label: fmt.Sprintf("FY%d overview", s.FiscalYear),
			Text:  s.Body,
		})
	}
	fields, _, err := h.summarizer.Summarize(ctx, llm.SummaryRequest{
		Kind:        constants.SummaryKindFrontpage,
		CompanyName: company.Name,
		Ticker:      company.Ticker,
		Sources:     sources,
	})
	if err != nil {
		h.step(ctx, runID, "frontpage_summary", outcome, err)
		return
	}
	_, err = h.filings.UpsertSummary(ctx, &entity.Summary{
		CompanyID: company.ID,
		Kind:      constants.SummaryKindFrontpage,
		Headline:  fields.Headline,
		Body:      fields.Body,
		KeyPoints: fields.KeyPoints,
		Model:     h.model,
	})
	h.step(ctx, runID, "frontpage_summary", outcome, err)
}
