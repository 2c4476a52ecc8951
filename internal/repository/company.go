package repository

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finbrief/finbrief/internal/common"
	"github.com/finbrief/finbrief/internal/entity"
)

// CompanyRepository persists registrant metadata and the scheduler's
// per-(company, form) last-seen accession state.
type CompanyRepository interface {
	Upsert(ctx context.Context, company *entity.Company) (*entity.Company, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Company, error)
	GetByTicker(ctx context.Context, ticker string) (*entity.Company, error)
	List(ctx context.Context) ([]*entity.Company, error)
	ListTracked(ctx context.Context) ([]*entity.Company, error)
	SetTracked(ctx context.Context, id uuid.UUID, tracked bool) error

	SeenAccessions(ctx context.Context, companyID uuid.UUID, form string) ([]string, error)
	MarkSeen(ctx context.Context, companyID uuid.UUID, form string, accessions []string) error
}

type companyRepo struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewCompanyRepository(pool *pgxpool.Pool, log *slog.Logger) CompanyRepository {
	return &companyRepo{pool: pool, log: log}
}

const companyColumns = `id, cik, ticker, name, exchange, tracked, created_at, updated_at`

// Upsert inserts or refreshes a company keyed by CIK. Idempotent: repeated
// ingestion of the same registrant converges on one row.
func (r *companyRepo) Upsert(ctx context.Context, c *entity.Company) (*entity.Company, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO companies (id, cik, ticker, name, exchange, tracked)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (cik) DO UPDATE SET
			ticker     = EXCLUDED.ticker,
			name       = EXCLUDED.name,
			exchange   = EXCLUDED.exchange,
			updated_at = now()
		RETURNING `+companyColumns,
		c.ID, c.CIK, c.Ticker, c.Name, c.Exchange, c.Tracked,
	)
	out, err := scanCompany(row)
	if err != nil {
		r.log.Error("company upsert failed", "cik", c.CIK, "error", err)
		return nil, common.Transient(err)
	}
	r.log.Info("company upserted", "company_id", out.ID, "cik", out.CIK, "ticker", out.Ticker)
	return out, nil
}

func (r *companyRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Company, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = $1`, id)
	return getCompany(row)
}

func (r *companyRepo) GetByTicker(ctx context.Context, ticker string) (*entity.Company, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE ticker = $1`, ticker)
	return getCompany(row)
}

func getCompany(row pgx.Row) (*entity.Company, error) {
	c, err := scanCompany(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, common.Transient(err)
	}
	return c, nil
}

func (r *companyRepo) List(ctx context.Context) ([]*entity.Company, error) {
	return r.list(ctx, `SELECT `+companyColumns+` FROM companies ORDER BY ticker`)
}

func (r *companyRepo) ListTracked(ctx context.Context) ([]*entity.Company, error) {
	return r.list(ctx, `SELECT `+companyColumns+` FROM companies WHERE tracked ORDER BY ticker`)
}

func (r *companyRepo) list(ctx context.Context, query string) ([]*entity.Company, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, common.Transient(err)
	}
	defer rows.Close()

	var out []*entity.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *companyRepo) SetTracked(ctx context.Context, id uuid.UUID, tracked bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE companies SET tracked = $2, updated_at = now() WHERE id = $1`, id, tracked)
	if err != nil {
		return common.Transient(err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *companyRepo) SeenAccessions(ctx context.Context, companyID uuid.UUID, form string) ([]string, error) {
	var seen []string
	err := r.pool.QueryRow(ctx,
		`SELECT seen_accessions FROM tracked_forms WHERE company_id = $1 AND form = $2`,
		companyID, form,
	).Scan(&seen)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, common.Transient(err)
	}
	return seen, nil
}

// MarkSeen merges accessions into the stored set for (company, form). The
// read-modify-write runs inside the statement itself, so concurrent callers
// cannot lose each other's additions.
func (r *companyRepo) MarkSeen(ctx context.Context, companyID uuid.UUID, form string, accessions []string) error {
	if len(accessions) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tracked_forms (company_id, form, seen_accessions)
		VALUES ($1, $2, $3)
		ON CONFLICT (company_id, form) DO UPDATE SET
			seen_accessions = (
				SELECT ARRAY(SELECT DISTINCT unnest(tracked_forms.seen_accessions || EXCLUDED.seen_accessions))
			),
			updated_at = now()`,
		companyID, form, accessions,
	)
	if err != nil {
		r.log.Error("tracked_forms update failed", "company_id", companyID, "form", form, "error", err)
		return common.Transient(err)
	}
	return nil
}

func scanCompany(row pgx.Row) (*entity.Company, error) {
	var c entity.Company
	if err := row.Scan(&c.ID, &c.CIK, &c.Ticker, &c.Name, &c.Exchange,
		&c.Tracked, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
