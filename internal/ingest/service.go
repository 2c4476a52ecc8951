package ingest

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/finbrief/finbrief/internal/common"
	"github.com/finbrief/finbrief/internal/edgar"
	"github.com/finbrief/finbrief/internal/entity"
	"github.com/finbrief/finbrief/internal/repository"
)

// Service performs idempotent company and filing ingestion. Re-running any
// ingest for the same inputs converges on the same rows, which is what makes
// duplicate queue jobs harmless.
type Service struct {
	edgar     edgar.Lookup
	companies repository.CompanyRepository
	filings   repository.FilingRepository
	forms     []string
	lookback  int
	log       *slog.Logger
}

func NewService(lookup edgar.Lookup, companies repository.CompanyRepository, filings repository.FilingRepository, forms []string, lookbackDays int, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		edgar:     lookup,
		companies: companies,
		filings:   filings,
		forms:     forms,
		lookback:  lookbackDays,
		log:       log,
	}
}

// IngestCompany refreshes the stored metadata for a company from EDGAR.
func (s *Service) IngestCompany(ctx context.Context, companyID uuid.UUID) (*entity.Company, error) {
	company, err := s.companies.GetByID(ctx, companyID)
	if err != nil {
		return nil, common.WrapError(err, "load company")
	}
	profile, err := s.edgar.CompanyProfile(ctx, company.CIK)
	if err != nil {
		return nil, common.WrapError(err, "fetch company profile")
	}
	company.Name = profile.Name
	if profile.Ticker != "" {
		company.Ticker = profile.Ticker
	}
	company.Exchange = profile.Exchange
	updated, err := s.companies.Upsert(ctx, company)
	if err != nil {
		return nil, common.WrapError(err, "upsert company")
	}
	s.log.Info("ingest.company.ok", "company_id", updated.ID, "cik", updated.CIK, "name", updated.Name)
	return updated, nil
}

// IngestFiling ensures the filing identified by accessionNumber, and its
// qualifying section documents, exist for the company. When accessionNumber
// is empty every filing in the lookback window is ingested instead.
func (s *Service) IngestFiling(ctx context.Context, company *entity.Company, accessionNumber string) ([]*entity.Filing, error) {
	listed, err := s.edgar.ListRecentFilings(ctx, company.CIK, s.forms, s.lookback)
	if err != nil {
		return nil, common.WrapError(err, "list recent filings")
	}

	var targets []edgar.Filing
	if accessionNumber == "" {
		targets = listed
	} else {
		for _, f := range listed {
			if f.AccessionNumber == accessionNumber {
				targets = []edgar.Filing{f}
				break
			}
		}
		if len(targets) == 0 {
			return nil, common.Permanentf("accession %s not found in EDGAR window for CIK %s", accessionNumber, company.CIK)
		}
	}

	var out []*entity.Filing
	for _, src := range targets {
		filing, err := s.ingestOne(ctx, company, src)
		if err != nil {
			// One bad filing must not block the rest of the window.
			s.log.Error("ingest.filing.failed", "company_id", company.ID, "accession_number", src.AccessionNumber, "error", err)
			if accessionNumber != "" {
				return nil, err
			}
			continue
		}
		out = append(out, filing)
	}
	return out, nil
}

func (s *Service) ingestOne(ctx context.Context, company *entity.Company, src edgar.Filing) (*entity.Filing, error) {
	filing, err := s.filings.Upsert(ctx, &entity.Filing{
		CompanyID:       company.ID,
		AccessionNumber: src.AccessionNumber,
		Form:            src.Form,
		FiledAt:         src.FiledAt,
		FiscalYear:      src.FiledAt.Year(),
		PrimaryDocument: src.PrimaryDocument,
	})
	if err != nil {
		return nil, common.WrapError(err, "upsert filing")
	}

	if src.PrimaryDocument == "" {
		s.log.Warn("ingest.filing.no_primary_document", "accession_number", src.AccessionNumber)
		return filing, nil
	}

	raw, err := s.edgar.FetchPrimaryDocument(ctx, company.CIK, src.AccessionNumber, src.PrimaryDocument)
	if err != nil {
		return nil, common.WrapError(err, "fetch primary document")
	}

	sections := ExtractSections(StripHTML(raw))
	for section, content := range sections {
		if _, err := s.filings.UpsertDocument(ctx, &entity.FilingDocument{
			FilingID: filing.ID,
			Section:  section,
			Content:  content,
		}); err != nil {
			return nil, common.WrapError(err, "upsert filing document")
		}
	}
	s.log.Info("ingest.filing.ok",
		"filing_id", filing.ID,
		"accession_number", filing.AccessionNumber,
		"form", filing.Form,
		"sections", len(sections),
	)
	return filing, nil
}
