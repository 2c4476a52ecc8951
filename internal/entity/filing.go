package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/finbrief/finbrief/constants"
)

// Filing is one EDGAR submission (identified by accession number).
type Filing struct {
	ID              uuid.UUID
	CompanyID       uuid.UUID
	AccessionNumber string
	Form            string
	FiledAt         time.Time
	FiscalYear      int
	PrimaryDocument string
	CreatedAt       time.Time
}

// FilingDocument is one extracted section of a filing's source document.
type FilingDocument struct {
	ID        uuid.UUID
	FilingID  uuid.UUID
	Section   constants.SummarySection
	Content   string
	CreatedAt time.Time
}

// Summary is one LLM-generated summary. DOCUMENT summaries reference a
// filing document; AGGREGATE summaries cover a company fiscal year;
// FRONTPAGE summaries cover the whole company.
type Summary struct {
	ID         uuid.UUID
	CompanyID  uuid.UUID
	FilingID   *uuid.UUID
	DocumentID *uuid.UUID
	Kind       constants.SummaryKind
	Section    constants.SummarySection
	FiscalYear int
	Headline   string
	Body       string
	KeyPoints  []string
	Model      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
