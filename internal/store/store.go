package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/scholarsource/scholarsource/pkg/models"
)

// ErrNotFound is returned when a job does not exist. Callers on the read path
// treat this as a normal outcome, not a failure.
var ErrNotFound = errors.New("resource not found")

// ErrAlreadyTerminal is returned when an update targets a job that has
// already reached a terminal status. Losing this race is a no-op for the
// caller, not a failure; the sentinel exists so logs can tell the two apart.
var ErrAlreadyTerminal = errors.New("job already in terminal state")

// Store is the job persistence interface. It is the single writer of truth
// for job state; the dispatcher and workers read-modify-write through it and
// never touch the underlying table directly.
type Store interface {
	Ping(ctx context.Context) error
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error
}

// UpdateParams collects the optional fields of an UpdateJobStatus call. Nil
// fields are left untouched by the write. Exported so fake stores in tests
// can replay the same options.
type UpdateParams struct {
	Results       []models.Resource
	Error         *string
	StatusMessage *string
	RawOutput     *string
	Metadata      map[string]any
}

// JobUpdateOption sets an optional field on an UpdateJobStatus call. Only
// provided fields are written.
type JobUpdateOption func(*UpdateParams)

func WithResults(results []models.Resource) JobUpdateOption {
	return func(p *UpdateParams) {
		p.Results = results
	}
}

func WithError(msg string) JobUpdateOption {
	return func(p *UpdateParams) {
		p.Error = &msg
	}
}

func WithStatusMessage(msg string) JobUpdateOption {
	return func(p *UpdateParams) {
		p.StatusMessage = &msg
	}
}

func WithRawOutput(raw string) JobUpdateOption {
	return func(p *UpdateParams) {
		p.RawOutput = &raw
	}
}

func WithMetadata(md map[string]any) JobUpdateOption {
	return func(p *UpdateParams) {
		p.Metadata = md
	}
}
