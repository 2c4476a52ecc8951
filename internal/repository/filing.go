package repository

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finbrief/finbrief/constants"
	"github.com/finbrief/finbrief/internal/common"
	"github.com/finbrief/finbrief/internal/entity"
)

// FilingRepository persists filings, their extracted section documents, and
// the generated summaries.
type FilingRepository interface {
	Upsert(ctx context.Context, f *entity.Filing) (*entity.Filing, error)
	GetByAccession(ctx context.Context, accession string) (*entity.Filing, error)
	ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*entity.Filing, error)

	UpsertDocument(ctx context.Context, d *entity.FilingDocument) (*entity.FilingDocument, error)
	ListDocuments(ctx context.Context, filingID uuid.UUID) ([]*entity.FilingDocument, error)

	UpsertSummary(ctx context.Context, s *entity.Summary) (*entity.Summary, error)
	ListSummariesByFiling(ctx context.Context, filingID uuid.UUID) ([]*entity.Summary, error)
	ListSummariesByCompany(ctx context.Context, companyID uuid.UUID, kind constants.SummaryKind) ([]*entity.Summary, error)
}

type filingRepo struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewFilingRepository(pool *pgxpool.Pool, log *slog.Logger) FilingRepository {
	return &filingRepo{pool: pool, log: log}
}

const filingColumns = `id, company_id, accession_number, form, filed_at, fiscal_year, primary_document, created_at`

// Upsert inserts a filing keyed by accession number. Re-ingesting an
// accession already on file is a no-op that returns the stored row.
func (r *filingRepo) Upsert(ctx context.Context, f *entity.Filing) (*entity.Filing, error) {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO filings (id, company_id, accession_number, form, filed_at, fiscal_year, primary_document)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (accession_number) DO UPDATE SET
			form             = EXCLUDED.form,
			filed_at         = EXCLUDED.filed_at,
			fiscal_year      = EXCLUDED.fiscal_year,
			primary_document = EXCLUDED.primary_document
		RETURNING `+filingColumns,
		f.ID, f.CompanyID, f.AccessionNumber, f.Form, f.FiledAt, f.FiscalYear, f.PrimaryDocument,
	)
	out, err := scanFiling(row)
	if err != nil {
		r.log.Error("filing upsert failed", "accession_number", f.AccessionNumber, "error", err)
		return nil, common.Transient(err)
	}
	r.log.Info("filing upserted", "filing_id", out.ID, "accession_number", out.AccessionNumber, "form", out.Form)
	return out, nil
}

func (r *filingRepo) GetByAccession(ctx context.Context, accession string) (*entity.Filing, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+filingColumns+` FROM filings WHERE accession_number = $1`, accession)
	f, err := scanFiling(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, common.Transient(err)
	}
	return f, nil
}

func (r *filingRepo) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*entity.Filing, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+filingColumns+` FROM filings
		WHERE company_id = $1 ORDER BY filed_at DESC`, companyID)
	if err != nil {
		return nil, common.Transient(err)
	}
	defer rows.Close()

	var out []*entity.Filing
	for rows.Next() {
		f, err := scanFiling(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *filingRepo) UpsertDocument(ctx context.Context, d *entity.FilingDocument) (*entity.FilingDocument, error) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO filing_documents (id, filing_id, section, content)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (filing_id, section) DO UPDATE SET content = EXCLUDED.content
		RETURNING id, filing_id, section, content, created_at`,
		d.ID, d.FilingID, string(d.Section), d.Content,
	)
	var out entity.FilingDocument
	var section string
	if err := row.Scan(&out.ID, &out.FilingID, &section, &out.Content, &out.CreatedAt); err != nil {
		r.log.Error("filing_document upsert failed", "filing_id", d.FilingID, "section", d.Section, "error", err)
		return nil, common.Transient(err)
	}
	out.Section = constants.SummarySection(section)
	return &out, nil
}

func (r *filingRepo) ListDocuments(ctx context.Context, filingID uuid.UUID) ([]*entity.FilingDocument, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, filing_id, section, content, created_at
		FROM filing_documents WHERE filing_id = $1 ORDER BY section`, filingID)
	if err != nil {
		return nil, common.Transient(err)
	}
	defer rows.Close()

	var out []*entity.FilingDocument
	for rows.Next() {
		var d entity.FilingDocument
		var section string
		if err := rows.Scan(&d.ID, &d.FilingID, &section, &d.Content, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.Section = constants.SummarySection(section)
		out = append(out, &d)
	}
	return out, rows.Err()
}

const summaryColumns = `id, company_id, filing_id, document_id, kind, section,
	fiscal_year, headline, body, key_points, model, created_at, updated_at`

// UpsertSummary writes a summary idempotently on its natural key: the
// document for DOCUMENT summaries, (company, fiscal_year) for AGGREGATE,
// the company for FRONTPAGE. Duplicate pipeline executions overwrite
// rather than duplicate.
func (r *filingRepo) UpsertSummary(ctx context.Context, s *entity.Summary) (*entity.Summary, error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	var conflict string
	switch s.Kind {
	case constants.SummaryKindDocument:
		conflict = `(document_id, kind) WHERE document_id IS NOT NULL`
	case constants.SummaryKindAggregate:
		conflict = `(company_id, kind, fiscal_year) WHERE kind = 'AGGREGATE'`
	case constants.SummaryKindFrontpage:
		conflict = `(company_id, kind) WHERE kind = 'FRONTPAGE'`
	default:
		return nil, common.Permanentf("unknown summary kind %q", s.Kind)
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO summaries (id, company_id, filing_id, document_id, kind, section, fiscal_year, headline, body, key_points, model)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT `+conflict+` DO UPDATE SET
			headline   = EXCLUDED.headline,
			body       = EXCLUDED.body,
			key_points = EXCLUDED.key_points,
			model      = EXCLUDED.model,
			updated_at = now()
		RETURNING `+summaryColumns,
		s.ID, s.CompanyID, s.FilingID, s.DocumentID, string(s.Kind), string(s.Section),
		s.FiscalYear, s.Headline, s.Body, s.KeyPoints, s.Model,
	)
	out, err := scanSummary(row)
	if err != nil {
		r.log.Error("summary upsert failed", "company_id", s.CompanyID, "kind", s.Kind, "error", err)
		return nil, common.Transient(err)
	}
	r.log.Info("summary upserted", "summary_id", out.ID, "kind", out.Kind, "section", out.Section, "fiscal_year", out.FiscalYear)
	return out, nil
}

func (r *filingRepo) ListSummariesByFiling(ctx context.Context, filingID uuid.UUID) ([]*entity.Summary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+summaryColumns+` FROM summaries
		WHERE filing_id = $1 ORDER BY section`, filingID)
	if err != nil {
		return nil, common.Transient(err)
	}
	return collectSummaries(rows)
}

func (r *filingRepo) ListSummariesByCompany(ctx context.Context, companyID uuid.UUID, kind constants.SummaryKind) ([]*entity.Summary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+summaryColumns+` FROM summaries
		WHERE company_id = $1 AND kind = $2 ORDER BY fiscal_year DESC, section`,
		companyID, string(kind))
	if err != nil {
		return nil, common.Transient(err)
	}
	return collectSummaries(rows)
}

func collectSummaries(rows pgx.Rows) ([]*entity.Summary, error) {
	defer rows.Close()
	var out []*entity.Summary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSummary(row pgx.Row) (*entity.Summary, error) {
	var (
		s       entity.Summary
		kind    string
		section string
	)
	if err := row.Scan(&s.ID, &s.CompanyID, &s.FilingID, &s.DocumentID, &kind, &section,
		&s.FiscalYear, &s.Headline, &s.Body, &s.KeyPoints, &s.Model,
		&s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Kind = constants.SummaryKind(kind)
	s.Section = constants.SummarySection(section)
	return &s, nil
}

func scanFiling(row pgx.Row) (*entity.Filing, error) {
	var f entity.Filing
	if err := row.Scan(&f.ID, &f.CompanyID, &f.AccessionNumber, &f.Form,
		&f.FiledAt, &f.FiscalYear, &f.PrimaryDocument, &f.CreatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}
