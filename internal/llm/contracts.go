package llm

import (
	"context"

	"github.com/finbrief/finbrief/constants"
)

// SummaryFields is the normalized shape we want from the LLM.
type SummaryFields struct {
	Headline  string   `json:"headline"`            // one-sentence takeaway
	Body      string   `json:"body"`                // 2-4 paragraph summary
	KeyPoints []string `json:"key_points"`          // 3-7 bullets
	Sentiment string   `json:"sentiment,omitempty"` // positive | neutral | negative
}

// SourceSummary is a previously generated summary fed back in as input for
// aggregate and frontpage generation.
type SourceSummary struct {
	Label string // e.g. "FY2024 10-K RISK_FACTORS"
	Text  string
}

// SummaryRequest covers all three generation levels. Section and SourceText
// are set for DOCUMENT requests; Sources for AGGREGATE and FRONTPAGE.
type SummaryRequest struct {
	Kind        constants.SummaryKind
	CompanyName string
	Ticker      string
	Form        string
	FiscalYear  int
	Section     constants.SummarySection
	SourceText  string
	Sources     []SourceSummary
}

// Summarizer is the interface the pipeline depends on.
type Summarizer interface {
	Summarize(ctx context.Context, req SummaryRequest) (SummaryFields, []byte /*rawJSON*/, error)
}
