package constants

// JobType enumerates the job kinds the worker knows how to dispatch.
// Adding a value here requires registering a handler in internal/worker.
type JobType string

const (
	JobTypeFullPipeline JobType = "FULL_PIPELINE"
)

// Trigger records what caused a job to be enqueued.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

// DefaultForms are the filing form types watched when a tracked company
// does not override them.
var DefaultForms = []string{"10-K", "10-Q"}

// SummarySection identifies a filing document section that qualifies for
// per-document summarization.
type SummarySection string

const (
	SectionBusiness    SummarySection = "BUSINESS"
	SectionRiskFactors SummarySection = "RISK_FACTORS"
	SectionMDA         SummarySection = "MDA"
)

// SummarySections lists the qualifying sections in generation order.
var SummarySections = []SummarySection{SectionBusiness, SectionRiskFactors, SectionMDA}

// SummaryKind distinguishes the three summary levels stored in the summaries table.
type SummaryKind string

const (
	SummaryKindDocument  SummaryKind = "DOCUMENT"
	SummaryKindAggregate SummaryKind = "AGGREGATE"
	SummaryKindFrontpage SummaryKind = "FRONTPAGE"
)
