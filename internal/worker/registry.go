package worker

import (
	"context"
	"fmt"

	"github.com/finbrief/finbrief/constants"
	"github.com/finbrief/finbrief/internal/entity"
)

// Handler executes one claimed job. A nil return finalizes the job as
// COMPLETED; an error is classified transient/permanent by the worker.
type Handler interface {
	Handle(ctx context.Context, job *entity.Job) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, job *entity.Job) error

func (f HandlerFunc) Handle(ctx context.Context, job *entity.Job) error {
	return f(ctx, job)
}

// Registry maps job types to handlers. The job-type set is closed
// (constants.JobType), so a type without a registration is a configuration
// bug surfaced at startup, not at dispatch time.
type Registry struct {
	handlers map[constants.JobType]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[constants.JobType]Handler)}
}

// Register binds a handler to a job type. Double registration is a
// programming error.
func (r *Registry) Register(jobType constants.JobType, h Handler) error {
	if _, dup := r.handlers[jobType]; dup {
		return fmt.Errorf("handler already registered for job type %q", jobType)
	}
	r.handlers[jobType] = h
	return nil
}

// Lookup returns the handler for jobType, or false when none is registered.
func (r *Registry) Lookup(jobType constants.JobType) (Handler, bool) {
	h, ok := r.handlers[jobType]
	return h, ok
}
