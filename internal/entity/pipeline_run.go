package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/finbrief/finbrief/constants"
)

// PipelineRun tracks one end-to-end FULL_PIPELINE execution. It is mutated
// only by the handler owning the run and is read-only to observers afterward.
type PipelineRun struct {
	ID             uuid.UUID
	JobID          uuid.UUID
	CompanyID      uuid.UUID
	Status         constants.RunStatus
	Trigger        constants.Trigger
	StepsAttempted int
	StepsSucceeded int
	StepsFailed    int
	LastError      string
	StartedAt      time.Time
	FinishedAt     *time.Time
}
