// Package broker connects the dispatcher to the worker fleet through a shared
// message queue. Workers in independent processes pull dispatched tasks; the
// dispatcher can flag an in-flight task for revocation, which workers observe
// cooperatively.
package broker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/scholarsource/scholarsource/pkg/models"
)

// Task is the unit of work handed from the dispatcher to a worker. The inputs
// snapshot travels with the task so a worker never needs the API process.
type Task struct {
	JobID       uuid.UUID              `json:"job_id"`
	Inputs      models.DiscoveryInputs `json:"inputs"`
	BypassCache bool                   `json:"bypass_cache"`
	EnqueuedAt  time.Time              `json:"enqueued_at"`
}

// Broker is the queue abstraction between dispatcher and workers.
//
// Revoke is advisory: it reports whether a revocable unit was found (the task
// was dispatched and no worker has acked it yet) and flags it. A worker deep
// inside a pipeline call may still finish; the job store's terminal-write
// guard makes that harmless.
type Broker interface {
	Publish(ctx context.Context, task Task) error
	Next(ctx context.Context) (*Task, error)
	Revoke(ctx context.Context, jobID uuid.UUID) (bool, error)
	Revoked(ctx context.Context, jobID uuid.UUID) (bool, error)
	Ack(ctx context.Context, jobID uuid.UUID) error
	Ping(ctx context.Context) error
}
