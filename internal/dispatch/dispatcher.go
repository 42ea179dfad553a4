// Package dispatch hands accepted jobs to the broker and relays cancellation
// requests. It never executes work itself and never blocks on job completion.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/scholarsource/scholarsource/internal/broker"
	"github.com/scholarsource/scholarsource/internal/store"
	"github.com/scholarsource/scholarsource/pkg/models"
)

// Dispatcher enqueues execution requests and relays revoke signals. It does
// not deduplicate submissions; the request layer submits at most once per job.
type Dispatcher struct {
	broker broker.Broker
	store  store.Store
}

// New creates a Dispatcher.
func New(b broker.Broker, s store.Store) *Dispatcher {
	return &Dispatcher{broker: b, store: s}
}

// Submit enqueues the job for asynchronous execution. Broker failures are
// surfaced synchronously so the caller can mark the job failed.
func (d *Dispatcher) Submit(ctx context.Context, jobID uuid.UUID, inputs models.DiscoveryInputs, bypassCache bool) error {
	task := broker.Task{
		JobID:       jobID,
		Inputs:      inputs,
		BypassCache: bypassCache,
		EnqueuedAt:  time.Now().UTC(),
	}
	if err := d.broker.Publish(ctx, task); err != nil {
		return fmt.Errorf("submit job %s: %w", jobID, err)
	}
	return nil
}

// Cancel requests best-effort cancellation of a dispatched job. The revoke
// flag is set first so a running worker can observe it, then the job row is
// moved to cancelled, guarded by the store's terminal-write check. Returns
// true if a revocable unit was found; false when the task already finished or
// was never dispatched.
func (d *Dispatcher) Cancel(ctx context.Context, jobID uuid.UUID) (bool, error) {
	revoked, err := d.broker.Revoke(ctx, jobID)
	if err != nil {
		// The job row can still be cancelled; the worker will lose the
		// terminal-write race if it finishes anyway.
		slog.Warn("broker revoke failed", "job_id", jobID, "error", err)
		revoked = false
	}

	err = d.store.UpdateJobStatus(ctx, jobID, models.JobStatusCancelled,
		store.WithStatusMessage("Job cancelled by user"))
	switch {
	case errors.Is(err, store.ErrAlreadyTerminal):
		slog.Info("cancel raced with terminal write, nothing to do", "job_id", jobID)
		return false, nil
	case err != nil:
		return false, fmt.Errorf("cancel job %s: %w", jobID, err)
	}

	return revoked, nil
}
