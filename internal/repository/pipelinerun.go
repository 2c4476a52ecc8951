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

// PipelineRunRepository tracks FULL_PIPELINE executions. A run is written
// only by the handler that owns it and becomes read-only once finalized.
type PipelineRunRepository interface {
	Start(ctx context.Context, jobID, companyID uuid.UUID, trigger constants.Trigger) (*entity.PipelineRun, error)
	RecordStep(ctx context.Context, runID uuid.UUID, succeeded bool, stepErr string) error
	Finish(ctx context.Context, runID uuid.UUID, status constants.RunStatus) error
	Get(ctx context.Context, runID uuid.UUID) (*entity.PipelineRun, error)
	List(ctx context.Context, companyID *uuid.UUID, limit int) ([]*entity.PipelineRun, error)
}

type pipelineRunRepo struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewPipelineRunRepository(pool *pgxpool.Pool, log *slog.Logger) PipelineRunRepository {
	return &pipelineRunRepo{pool: pool, log: log}
}

const runColumns = `id, job_id, company_id, status, trigger_source,
	steps_attempted, steps_succeeded, steps_failed, last_error, started_at, finished_at`

func (r *pipelineRunRepo) Start(ctx context.Context, jobID, companyID uuid.UUID, trigger constants.Trigger) (*entity.PipelineRun, error) {
	run := &entity.PipelineRun{
		ID:        uuid.New(),
		JobID:     jobID,
		CompanyID: companyID,
		Status:    constants.RunStatusRunning,
		Trigger:   trigger,
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO pipeline_runs (id, job_id, company_id, status, trigger_source)
		VALUES ($1, $2, $3, 'RUNNING', $4)
		RETURNING started_at`,
		run.ID, jobID, companyID, string(trigger),
	)
	if err := row.Scan(&run.StartedAt); err != nil {
		r.log.Error("pipeline_run start failed", "job_id", jobID, "error", err)
		return nil, common.Transient(err)
	}
	r.log.Info("pipeline_run started", "run_id", run.ID, "job_id", jobID, "company_id", companyID, "trigger", trigger)
	return run, nil
}

func (r *pipelineRunRepo) RecordStep(ctx context.Context, runID uuid.UUID, succeeded bool, stepErr string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE pipeline_runs SET
			steps_attempted = steps_attempted + 1,
			steps_succeeded = steps_succeeded + CASE WHEN $2 THEN 1 ELSE 0 END,
			steps_failed    = steps_failed    + CASE WHEN $2 THEN 0 ELSE 1 END,
			last_error      = CASE WHEN $2 THEN last_error ELSE $3 END
		WHERE id = $1`,
		runID, succeeded, stepErr,
	)
	if err != nil {
		r.log.Error("pipeline_run step update failed", "run_id", runID, "error", err)
		return common.Transient(err)
	}
	return nil
}

func (r *pipelineRunRepo) Finish(ctx context.Context, runID uuid.UUID, status constants.RunStatus) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE pipeline_runs SET status = $2, finished_at = now() WHERE id = $1`,
		runID, string(status),
	)
	if err != nil {
		r.log.Error("pipeline_run finish failed", "run_id", runID, "error", err)
		return common.Transient(err)
	}
	r.log.Info("pipeline_run finished", "run_id", runID, "status", status)
	return nil
}

func (r *pipelineRunRepo) Get(ctx context.Context, runID uuid.UUID) (*entity.PipelineRun, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM pipeline_runs WHERE id = $1`, runID)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, common.Transient(err)
	}
	return run, nil
}

func (r *pipelineRunRepo) List(ctx context.Context, companyID *uuid.UUID, limit int) ([]*entity.PipelineRun, error) {
	if limit <= 0 {
		limit = 100
	}
	var (
		rows pgx.Rows
		err  error
	)
	if companyID != nil {
		rows, err = r.pool.Query(ctx, `
			SELECT `+runColumns+` FROM pipeline_runs
			WHERE company_id = $1 ORDER BY started_at DESC LIMIT $2`, *companyID, limit)
	} else {
		rows, err = r.pool.Query(ctx, `
			SELECT `+runColumns+` FROM pipeline_runs ORDER BY started_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, common.Transient(err)
	}
	defer rows.Close()

	var runs []*entity.PipelineRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(row pgx.Row) (*entity.PipelineRun, error) {
	var (
		run     entity.PipelineRun
		status  string
		trigger string
	)
	if err := row.Scan(&run.ID, &run.JobID, &run.CompanyID, &status, &trigger,
		&run.StepsAttempted, &run.StepsSucceeded, &run.StepsFailed,
		&run.LastError, &run.StartedAt, &run.FinishedAt); err != nil {
		return nil, err
	}
	run.Status = constants.RunStatus(status)
	run.Trigger = constants.Trigger(trigger)
	return &run, nil
}
