package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/finbrief/finbrief/constants"
)

// JobPayload is the structured parameter block stored with every queue row.
// AccessionNumber is optional; when empty the pipeline ingests every new
// filing for the company.
type JobPayload struct {
	CompanyID       uuid.UUID `json:"company_id"`
	Ticker          string    `json:"ticker,omitempty"`
	AccessionNumber string    `json:"accession_number,omitempty"`
}

// Job is one unit of enqueued work in the shared queue. Rows are retained
// after completion for audit.
type Job struct {
	ID           uuid.UUID
	JobType      constants.JobType
	Payload      JobPayload
	Trigger      constants.Trigger
	Status       constants.JobStatus
	AttemptCount int
	MaxAttempts  int
	WorkerID     string
	LastError    string
	CreatedAt    time.Time
	ClaimedAt    *time.Time
	CompletedAt  *time.Time
}

// MarshalPayload renders the payload for storage in the jsonb column.
func (j *Job) MarshalPayload() ([]byte, error) {
	return json.Marshal(j.Payload)
}

// CanRetry reports whether another attempt is allowed after a retryable failure.
func (j *Job) CanRetry() bool {
	return j.AttemptCount+1 < j.MaxAttempts
}
