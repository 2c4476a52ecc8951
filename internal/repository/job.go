package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finbrief/finbrief/constants"
	"github.com/finbrief/finbrief/internal/common"
	"github.com/finbrief/finbrief/internal/entity"
)

// ErrNoJob is returned by ClaimNext when the queue holds nothing claimable.
var ErrNoJob = errors.New("no job available")

// JobRepository is the queue contract shared by the scheduler (producer),
// the worker (consumer), and the API (read-only).
//
// Claim and mark operations are single atomic transactions; a crash between
// ClaimNext and MarkCompleted/MarkFailed is recovered only by ReapStale.
// ReapStale cannot tell a crashed worker from a slow one: a handler still
// running past the stale threshold will have its job requeued and re-run
// concurrently. Handlers are idempotent, so the duplicate work is wasted,
// not incorrect.
type JobRepository interface {
	Enqueue(ctx context.Context, jobType constants.JobType, payload entity.JobPayload, trigger constants.Trigger, maxAttempts int) (*entity.Job, error)
	ClaimNext(ctx context.Context, workerID string) (*entity.Job, error)
	MarkCompleted(ctx context.Context, jobID uuid.UUID) error
	MarkFailed(ctx context.Context, jobID uuid.UUID, jobErr string, retryable bool) error
	ReapStale(ctx context.Context, threshold time.Duration) (int, error)
	Get(ctx context.Context, jobID uuid.UUID) (*entity.Job, error)
	List(ctx context.Context, limit int) ([]*entity.Job, error)
}

type jobRepo struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewJobRepository(pool *pgxpool.Pool, log *slog.Logger) JobRepository {
	return &jobRepo{pool: pool, log: log}
}

const jobColumns = `id, job_type, payload, trigger_source, status, attempt_count, max_attempts,
	worker_id, COALESCE(last_error, ''), created_at, claimed_at, completed_at`

func (r *jobRepo) Enqueue(ctx context.Context, jobType constants.JobType, payload entity.JobPayload, trigger constants.Trigger, maxAttempts int) (*entity.Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, common.Permanent(err)
	}
	job := &entity.Job{
		ID:          uuid.New(),
		JobType:     jobType,
		Payload:     payload,
		Trigger:     trigger,
		Status:      constants.JobStatusPending,
		MaxAttempts: maxAttempts,
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO job_queue (id, job_type, payload, trigger_source, status, max_attempts)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		job.ID, string(jobType), body, string(trigger), string(job.Status), maxAttempts,
	)
	if err := row.Scan(&job.CreatedAt); err != nil {
		r.log.Error("job enqueue failed", "job_type", jobType, "error", err)
		return nil, common.Transient(err)
	}
	r.log.Info("job enqueued",
		"job_id", job.ID,
		"job_type", jobType,
		"trigger", trigger,
		"company_id", payload.CompanyID,
		"accession_number", payload.AccessionNumber,
	)
	return job, nil
}

// ClaimNext atomically claims the oldest PENDING or RETRYING job. The
// FOR UPDATE SKIP LOCKED subquery guarantees that concurrent callers, in
// this process or on other hosts, never receive the same row.
func (r *jobRepo) ClaimNext(ctx context.Context, workerID string) (*entity.Job, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE job_queue SET
			status = 'RUNNING',
			worker_id = $1,
			claimed_at = now()
		WHERE id = (
			SELECT id FROM job_queue
			WHERE status IN ('PENDING', 'RETRYING')
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
		workerID,
	)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoJob
		}
		r.log.Error("job claim failed", "worker_id", workerID, "error", err)
		return nil, common.Transient(err)
	}
	r.log.Info("job claimed",
		"job_id", job.ID,
		"job_type", job.JobType,
		"worker_id", workerID,
		"attempt", job.AttemptCount+1,
		"max_attempts", job.MaxAttempts,
	)
	return job, nil
}

func (r *jobRepo) MarkCompleted(ctx context.Context, jobID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE job_queue SET status = 'COMPLETED', completed_at = now()
		WHERE id = $1 AND status = 'RUNNING'`,
		jobID,
	)
	if err != nil {
		r.log.Error("job completion update failed", "job_id", jobID, "error", err)
		return common.Transient(err)
	}
	if tag.RowsAffected() == 0 {
		// Reaped out from under us while the handler ran. Log and move on.
		r.log.Warn("job no longer RUNNING at completion", "job_id", jobID)
		return nil
	}
	r.log.Info("job completed", "job_id", jobID)
	return nil
}

// MarkFailed increments attempt_count. If the failure is retryable and
// attempts remain, the job goes back to RETRYING (claimable again);
// otherwise it is FAILED terminally. Returns the resulting transition
// through the log only; callers do not branch on it.
func (r *jobRepo) MarkFailed(ctx context.Context, jobID uuid.UUID, jobErr string, retryable bool) error {
	row := r.pool.QueryRow(ctx, `
		UPDATE job_queue SET
			attempt_count = attempt_count + 1,
			last_error = $2,
			status = CASE
				WHEN $3 AND attempt_count + 1 < max_attempts THEN 'RETRYING'
				ELSE 'FAILED'
			END,
			completed_at = CASE
				WHEN $3 AND attempt_count + 1 < max_attempts THEN completed_at
				ELSE now()
			END
		WHERE id = $1
		RETURNING status, attempt_count`,
		jobID, jobErr, retryable,
	)
	var status string
	var attempts int
	if err := row.Scan(&status, &attempts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return common.NewAppError("JOB_NOT_FOUND", "marking job failed", common.ErrNotFound)
		}
		r.log.Error("job failure update failed", "job_id", jobID, "error", err)
		return common.Transient(err)
	}
	if status == string(constants.JobStatusFailed) {
		r.log.Warn("job failed terminally", "job_id", jobID, "attempts", attempts, "error", jobErr)
	} else {
		r.log.Warn("job scheduled for retry", "job_id", jobID, "attempts", attempts, "error", jobErr)
	}
	return nil
}

// ReapStale requeues RUNNING jobs whose claim is older than threshold,
// subject to the same attempt accounting as MarkFailed. This is the only
// recovery path for a worker that died mid-job.
func (r *jobRepo) ReapStale(ctx context.Context, threshold time.Duration) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE job_queue SET
			attempt_count = attempt_count + 1,
			last_error = 'reaped: stale claim by ' || worker_id,
			worker_id = '',
			claimed_at = NULL,
			status = CASE
				WHEN attempt_count + 1 < max_attempts THEN 'RETRYING'
				ELSE 'FAILED'
			END,
			completed_at = CASE
				WHEN attempt_count + 1 < max_attempts THEN NULL
				ELSE now()
			END
		WHERE status = 'RUNNING' AND claimed_at < now() - make_interval(secs => $1)`,
		threshold.Seconds(),
	)
	if err != nil {
		r.log.Error("stale reap failed", "error", err)
		return 0, common.Transient(err)
	}
	if n := tag.RowsAffected(); n > 0 {
		r.log.Warn("reaped stale jobs", "count", n, "threshold", threshold)
		return int(n), nil
	}
	return 0, nil
}

func (r *jobRepo) Get(ctx context.Context, jobID uuid.UUID) (*entity.Job, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM job_queue WHERE id = $1`, jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, common.Transient(err)
	}
	return job, nil
}

func (r *jobRepo) List(ctx context.Context, limit int) ([]*entity.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM job_queue ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, common.Transient(err)
	}
	defer rows.Close()

	var jobs []*entity.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(row pgx.Row) (*entity.Job, error) {
	var (
		job     entity.Job
		jobType string
		trigger string
		status  string
		payload []byte
	)
	if err := row.Scan(&job.ID, &jobType, &payload, &trigger, &status,
		&job.AttemptCount, &job.MaxAttempts, &job.WorkerID, &job.LastError,
		&job.CreatedAt, &job.ClaimedAt, &job.CompletedAt); err != nil {
		return nil, err
	}
	job.JobType = constants.JobType(jobType)
	job.Trigger = constants.Trigger(trigger)
	job.Status = constants.JobStatus(status)
	if err := json.Unmarshal(payload, &job.Payload); err != nil {
		return nil, common.Permanent(err)
	}
	return &job, nil
}
