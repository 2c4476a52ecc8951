package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/finbrief/finbrief/internal/common"
	"github.com/finbrief/finbrief/internal/entity"
	"github.com/finbrief/finbrief/internal/repository"
)

// Worker claims jobs from the shared queue and dispatches them through the
// registry. Multiple workers may run against the same queue, on the same or
// different hosts; disjoint ownership comes from the claim protocol, not
// from anything in this process.
type Worker struct {
	jobs     repository.JobRepository
	registry *Registry
	cfg      common.WorkerConfig
	id       string
	log      *slog.Logger
}

func New(jobs repository.JobRepository, registry *Registry, cfg common.WorkerConfig, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	host, _ := os.Hostname()
	return &Worker{
		jobs:     jobs,
		registry: registry,
		cfg:      cfg,
		id:       fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.New().String()[:8]),
		log:      log,
	}
}

// ID returns the worker identity recorded on claimed jobs.
func (w *Worker) ID() string { return w.id }

// Run executes the claim/dispatch/finalize loop until ctx is cancelled.
// One job executes fully before the next claim. Every cfg.ReapEvery polls
// the worker also requeues stale RUNNING jobs.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker started",
		"worker_id", w.id,
		"poll_interval", w.cfg.PollInterval,
		"stale_threshold", w.cfg.StaleThreshold,
	)
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	polls := 0
	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker shutting down", "worker_id", w.id)
			return ctx.Err()
		case <-ticker.C:
			polls++
			if w.cfg.ReapEvery > 0 && polls%w.cfg.ReapEvery == 0 {
				if _, err := w.jobs.ReapStale(ctx, w.cfg.StaleThreshold); err != nil {
					w.log.Error("stale reap failed", "worker_id", w.id, "error", err)
				}
			}
			w.drain(ctx)
		}
	}
}

// drain claims and executes jobs one at a time until the queue is empty.
func (w *Worker) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := w.jobs.ClaimNext(ctx, w.id)
		if err != nil {
			if !errors.Is(err, repository.ErrNoJob) {
				w.log.Error("claim failed", "worker_id", w.id, "error", err)
			}
			return
		}
		w.execute(ctx, job)
	}
}

// execute dispatches one claimed job and finalizes its queue row. Panics
// and errors are contained here; nothing a single job does may take the
// worker loop down.
func (w *Worker) execute(ctx context.Context, job *entity.Job) {
	handler, ok := w.registry.Lookup(job.JobType)
	if !ok {
		// A data/config problem, not a transient fault: never retried.
		w.log.Error("no handler for job type", "job_id", job.ID, "job_type", job.JobType)
		w.finalize(ctx, job, common.Permanentf("unknown job type %q", job.JobType))
		return
	}

	start := time.Now()
	err := w.runHandler(ctx, handler, job)
	w.log.Info("job handler returned",
		"job_id", job.ID,
		"job_type", job.JobType,
		"elapsed_ms", time.Since(start).Milliseconds(),
		"success", err == nil,
	)
	w.finalize(ctx, job, err)
}

func (w *Worker) runHandler(ctx context.Context, handler Handler, job *entity.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = common.Permanentf("handler panic: %v", r)
		}
	}()
	return handler.Handle(ctx, job)
}

func (w *Worker) finalize(ctx context.Context, job *entity.Job, handlerErr error) {
	if handlerErr == nil {
		if err := w.jobs.MarkCompleted(ctx, job.ID); err != nil {
			w.log.Error("mark completed failed", "job_id", job.ID, "error", err)
		}
		return
	}
	retryable := common.IsTransient(handlerErr)
	if err := w.jobs.MarkFailed(ctx, job.ID, handlerErr.Error(), retryable); err != nil {
		w.log.Error("mark failed failed", "job_id", job.ID, "error", err)
	}
}
