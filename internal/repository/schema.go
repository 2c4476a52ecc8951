package repository

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finbrief/finbrief/internal/common"
)

const schema = `
CREATE TABLE IF NOT EXISTS companies (
    id          UUID PRIMARY KEY,
    cik         TEXT NOT NULL UNIQUE,
    ticker      TEXT NOT NULL DEFAULT '',
    name        TEXT NOT NULL DEFAULT '',
    exchange    TEXT NOT NULL DEFAULT '',
    tracked     BOOLEAN NOT NULL DEFAULT FALSE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_companies_ticker ON companies(ticker) WHERE ticker <> '';

CREATE TABLE IF NOT EXISTS tracked_forms (
    company_id      UUID NOT NULL REFERENCES companies(id),
    form            TEXT NOT NULL,
    seen_accessions TEXT[] NOT NULL DEFAULT '{}',
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (company_id, form)
);

CREATE TABLE IF NOT EXISTS filings (
    id               UUID PRIMARY KEY,
    company_id       UUID NOT NULL REFERENCES companies(id),
    accession_number TEXT NOT NULL UNIQUE,
    form             TEXT NOT NULL,
    filed_at         TIMESTAMPTZ NOT NULL,
    fiscal_year      INTEGER NOT NULL DEFAULT 0,
    primary_document TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_filings_company ON filings(company_id, filed_at DESC);

CREATE TABLE IF NOT EXISTS filing_documents (
    id         UUID PRIMARY KEY,
    filing_id  UUID NOT NULL REFERENCES filings(id),
    section    TEXT NOT NULL,
    content    TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (filing_id, section)
);

CREATE TABLE IF NOT EXISTS summaries (
    id          UUID PRIMARY KEY,
    company_id  UUID NOT NULL REFERENCES companies(id),
    filing_id   UUID REFERENCES filings(id),
    document_id UUID REFERENCES filing_documents(id),
    kind        TEXT NOT NULL,
    section     TEXT NOT NULL DEFAULT '',
    fiscal_year INTEGER NOT NULL DEFAULT 0,
    headline    TEXT NOT NULL DEFAULT '',
    body        TEXT NOT NULL,
    key_points  TEXT[] NOT NULL DEFAULT '{}',
    model       TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_summaries_document ON summaries(document_id, kind) WHERE document_id IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_summaries_aggregate ON summaries(company_id, kind, fiscal_year) WHERE kind = 'AGGREGATE';
CREATE UNIQUE INDEX IF NOT EXISTS idx_summaries_frontpage ON summaries(company_id, kind) WHERE kind = 'FRONTPAGE';

CREATE TABLE IF NOT EXISTS job_queue (
    id             UUID PRIMARY KEY,
    job_type       TEXT NOT NULL,
    payload        JSONB NOT NULL,
    trigger_source TEXT NOT NULL,
    status         TEXT NOT NULL DEFAULT 'PENDING',
    attempt_count  INTEGER NOT NULL DEFAULT 0,
    max_attempts   INTEGER NOT NULL DEFAULT 3,
    worker_id      TEXT NOT NULL DEFAULT '',
    last_error     TEXT,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    claimed_at     TIMESTAMPTZ,
    completed_at   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_job_queue_claim ON job_queue(status, created_at);

CREATE TABLE IF NOT EXISTS pipeline_runs (
    id              UUID PRIMARY KEY,
    job_id          UUID NOT NULL REFERENCES job_queue(id),
    company_id      UUID NOT NULL REFERENCES companies(id),
    status          TEXT NOT NULL DEFAULT 'RUNNING',
    trigger_source  TEXT NOT NULL,
    steps_attempted INTEGER NOT NULL DEFAULT 0,
    steps_succeeded INTEGER NOT NULL DEFAULT 0,
    steps_failed    INTEGER NOT NULL DEFAULT 0,
    last_error      TEXT NOT NULL DEFAULT '',
    started_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    finished_at     TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_company ON pipeline_runs(company_id, started_at DESC);
`

// Migrate applies the embedded DDL. Every statement is idempotent, so this
// runs unconditionally at process start.
func Migrate(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		logger.Error("schema migration failed", "error", err)
		return common.NewAppError("DB_MIGRATE", "applying schema", err)
	}
	logger.Info("schema migration applied")
	return nil
}
