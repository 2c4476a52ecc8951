package constants

// JobStatus is the canonical status for rows in job_queue.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusPending   JobStatus = "PENDING"   // eligible for claiming
	JobStatusRunning   JobStatus = "RUNNING"   // claimed by a worker
	JobStatusCompleted JobStatus = "COMPLETED" // terminal success
	JobStatusFailed    JobStatus = "FAILED"    // terminal failure
	JobStatusRetrying  JobStatus = "RETRYING"  // failed attempt, waiting for reclaim
)

// RunStatus is the canonical status for rows in pipeline_run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "PENDING"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED" // every sub-step succeeded
	RunStatusFailed    RunStatus = "FAILED"    // every attempted sub-step failed
	RunStatusPartial   RunStatus = "PARTIAL"   // at least one success and at least one failure
)
