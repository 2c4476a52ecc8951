package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/finbrief/finbrief/constants"
	"github.com/finbrief/finbrief/internal/common"
	"github.com/finbrief/finbrief/internal/edgar"
	"github.com/finbrief/finbrief/internal/entity"
	"github.com/finbrief/finbrief/internal/repository"
)

// Scheduler polls EDGAR for each tracked company on a fixed interval, diffs
// discovered filings against the persisted last-seen sets, and enqueues one
// FULL_PIPELINE job per new accession number. It only produces work; it
// never executes a job.
//
// Enqueue is at-least-once, not exactly-once: last-seen state is updated
// even when an enqueue fails, so a filing lost that way waits for a manual
// trigger rather than being re-detected next cycle.
type Scheduler struct {
	companies   repository.CompanyRepository
	jobs        repository.JobRepository
	edgar       edgar.Lookup
	cfg         common.SchedulerConfig
	maxAttempts int
	log         *slog.Logger
}

func New(
	companies repository.CompanyRepository,
	jobs repository.JobRepository,
	lookup edgar.Lookup,
	cfg common.SchedulerConfig,
	maxAttempts int,
	log *slog.Logger,
) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		companies:   companies,
		jobs:        jobs,
		edgar:       lookup,
		cfg:         cfg,
		maxAttempts: maxAttempts,
		log:         log,
	}
}

// Run executes poll cycles until ctx is cancelled. The first cycle runs
// immediately; later ones on the configured interval.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("scheduler started",
		"poll_interval", s.cfg.PollInterval,
		"forms", s.cfg.EnabledForms,
		"lookback_days", s.cfg.LookbackDays,
	)
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.Cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler shutting down")
			return ctx.Err()
		case <-ticker.C:
			s.Cycle(ctx)
		}
	}
}

// Cycle polls every tracked company once. A failure for one company is
// logged and isolated; it never aborts the cycle for the rest.
func (s *Scheduler) Cycle(ctx context.Context) {
	start := time.Now()
	companies, err := s.companies.ListTracked(ctx)
	if err != nil {
		s.log.Error("scheduler.cycle.list_tracked_failed", "error", err)
		return
	}

	enqueued := 0
	for _, company := range companies {
		if ctx.Err() != nil {
			return
		}
		n, err := s.pollCompany(ctx, company)
		if err != nil {
			s.log.Error("scheduler.poll.failed",
				"company_id", company.ID,
				"ticker", company.Ticker,
				"cik", company.CIK,
				"error", err,
			)
			continue
		}
		enqueued += n
	}
	s.log.Info("scheduler.cycle.done",
		"companies", len(companies),
		"enqueued", enqueued,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
}

// pollCompany fetches the company's recent filings, enqueues a job for each
// accession not yet seen for its form, and records the whole window as seen.
func (s *Scheduler) pollCompany(ctx context.Context, company *entity.Company) (int, error) {
	filings, err := s.edgar.ListRecentFilings(ctx, company.CIK, s.cfg.EnabledForms, s.cfg.LookbackDays)
	if err != nil {
		return 0, common.WrapError(err, "list recent filings")
	}

	byForm := map[string][]edgar.Filing{}
	for _, f := range filings {
		byForm[f.Form] = append(byForm[f.Form], f)
	}

	enqueued := 0
	for form, group := range byForm {
		seen, err := s.companies.SeenAccessions(ctx, company.ID, form)
		if err != nil {
			return enqueued, common.WrapError(err, "load seen accessions")
		}
		seenSet := make(map[string]struct{}, len(seen))
		for _, a := range seen {
			seenSet[a] = struct{}{}
		}

		accessions := make([]string, 0, len(group))
		for _, f := range group {
			accessions = append(accessions, f.AccessionNumber)
			if _, ok := seenSet[f.AccessionNumber]; ok {
				continue
			}
			_, err := s.jobs.Enqueue(ctx, constants.JobTypeFullPipeline, entity.JobPayload{
				CompanyID:       company.ID,
				Ticker:          company.Ticker,
				AccessionNumber: f.AccessionNumber,
			}, constants.TriggerScheduled, s.maxAttempts)
			if err != nil {
				// Logged and lost: the accession is still marked seen below.
				s.log.Error("scheduler.enqueue.failed",
					"company_id", company.ID,
					"accession_number", f.AccessionNumber,
					"error", err,
				)
				continue
			}
			s.log.Info("scheduler.enqueue.ok",
				"company_id", company.ID,
				"ticker", company.Ticker,
				"form", form,
				"accession_number", f.AccessionNumber,
			)
			enqueued++
		}

		if err := s.companies.MarkSeen(ctx, company.ID, form, accessions); err != nil {
			return enqueued, common.WrapError(err, "mark accessions seen")
		}
	}
	return enqueued, nil
}
