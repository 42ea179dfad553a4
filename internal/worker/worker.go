// Package worker pulls dispatched discovery jobs from the broker and runs
// them through the job state machine: cache consult, pipeline execution,
// result parsing, and the guarded terminal write.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/scholarsource/scholarsource/internal/broker"
	"github.com/scholarsource/scholarsource/internal/cache"
	"github.com/scholarsource/scholarsource/internal/markdown"
	"github.com/scholarsource/scholarsource/internal/pipeline"
	"github.com/scholarsource/scholarsource/internal/store"
	"github.com/scholarsource/scholarsource/pkg/models"
)

// revokePollInterval is how often a busy worker checks for a revoke flag.
const revokePollInterval = 2 * time.Second

// analysisSnippetLen bounds the raw analysis text stored in the cache.
const analysisSnippetLen = 2000

// Worker executes dispatched jobs one at a time. A job occupies the worker
// for its full duration; run more worker processes for more parallelism.
type Worker struct {
	broker broker.Broker
	store  store.Store
	cache  cache.Cache
	runner pipeline.Runner
	logger *slog.Logger

	pollInterval time.Duration
}

// New creates a Worker.
func New(b broker.Broker, s store.Store, c cache.Cache, r pipeline.Runner, logger *slog.Logger) *Worker {
	return &Worker{
		broker:       b,
		store:        s,
		cache:        c,
		runner:       r,
		logger:       logger,
		pollInterval: revokePollInterval,
	}
}

// Run consumes tasks until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started")
	for {
		task, err := w.broker.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("worker stopping")
				return ctx.Err()
			}
			w.logger.Error("broker receive failed", "error", err)
			time.Sleep(time.Second)
			continue
		}
		w.Process(ctx, task)
	}
}

// Process runs a single dispatched task through the state machine. It never
// panics outward: any failure ends in an attempted terminal write so the job
// cannot be left stuck in running.
func (w *Worker) Process(ctx context.Context, task *broker.Task) {
	log := w.logger.With("job_id", task.JobID)

	// Store writes and the ack must land even when ctx dies mid-job during a
	// graceful shutdown: the task is already off the queue with no redelivery,
	// so a write skipped here leaves the job stuck in running forever. Only
	// the pipeline run itself stays bound to ctx.
	detached := context.WithoutCancel(ctx)

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic during job execution", "panic", r, "stack", string(debug.Stack()))
			w.writeTerminal(detached, task.JobID, models.JobStatusFailed,
				store.WithError(fmt.Sprintf("internal error: %v", r)),
				store.WithStatusMessage("Job failed due to an error"))
		}
		if err := w.broker.Ack(detached, task.JobID); err != nil {
			log.Warn("task ack failed", "error", err)
		}
	}()

	// A re-delivered or pre-cancelled job is dropped before any writes.
	job, err := w.store.GetJob(detached, task.JobID)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("job not found, dropping task")
		return
	}
	if err != nil {
		log.Error("job lookup failed, dropping task", "error", err)
		return
	}
	if job.IsTerminal() {
		log.Info("job already terminal, skipping", "status", job.Status)
		return
	}

	// Cache consult is an optimization only: any cache failure is a miss.
	cachedAnalysis := w.lookupAnalysis(detached, task, log)

	statusMsg := "Analyzing course and book structure..."
	if cachedAnalysis != nil {
		statusMsg = "Using cached course analysis, discovering resources..."
	}
	err = w.store.UpdateJobStatus(detached, task.JobID, models.JobStatusRunning,
		store.WithStatusMessage(statusMsg))
	if errors.Is(err, store.ErrAlreadyTerminal) {
		log.Info("job cancelled before execution started")
		return
	}
	if err != nil {
		log.Error("failed to mark job running, dropping task", "error", err)
		return
	}

	// A cached analysis lets the pipeline skip its first stage: the working
	// inputs already carry the textbook identity.
	inputs := task.Inputs
	if cachedAnalysis != nil {
		log.Info("cache hit, skipping course analysis stage")
		if inputs.BookTitle == "" {
			inputs.BookTitle = cachedAnalysis.TextbookTitle
		}
		if inputs.BookAuthor == "" {
			inputs.BookAuthor = cachedAnalysis.TextbookAuthor
		}
	} else {
		log.Info("cache miss, running full pipeline", "bypass", task.BypassCache)
	}

	raw, err := w.runPipeline(ctx, task.JobID, inputs)
	if err != nil {
		// The revoke flag, not the context error, decides whether this is a
		// user cancellation: a worker shutdown also surfaces as canceled.
		if w.jobRevoked(detached, task.JobID) || (ctx.Err() == nil && errors.Is(err, context.Canceled)) {
			log.Info("pipeline aborted by cancellation")
			w.writeTerminal(detached, task.JobID, models.JobStatusCancelled,
				store.WithStatusMessage("Job cancelled during execution"))
			return
		}
		if ctx.Err() != nil {
			log.Warn("worker shutting down mid-job, failing job", "error", err)
			w.writeTerminal(detached, task.JobID, models.JobStatusFailed,
				store.WithError("Worker shut down during execution. Please resubmit the job."),
				store.WithStatusMessage("Job failed due to an error"))
			return
		}
		log.Error("pipeline failed", "error", err)
		w.writeTerminal(detached, task.JobID, models.JobStatusFailed,
			store.WithError(userMessage(err)),
			store.WithStatusMessage("Job failed due to an error"))
		return
	}

	// The pipeline reports unreachable inputs as an ERROR: sentinel near the
	// top of the report instead of failing the call.
	if msg, found := scanOutputError(raw); found {
		log.Warn("pipeline reported an error", "error", msg)
		w.writeTerminal(detached, task.JobID, models.JobStatusFailed,
			store.WithError(msg),
			store.WithStatusMessage("Failed to access course or book resources"),
			store.WithRawOutput(truncate(raw, 1000)))
		return
	}

	if err := w.store.UpdateJobStatus(detached, task.JobID, models.JobStatusRunning,
		store.WithStatusMessage("Parsing results...")); err != nil && !errors.Is(err, store.ErrAlreadyTerminal) {
		log.Warn("progress update failed", "error", err)
	}

	parsed := markdown.Parse(raw, task.Inputs.ExcludedSites)

	// Populate the analysis tier only on a fresh analysis, keyed by the
	// original inputs so equivalent future jobs derive the same key.
	if cachedAnalysis == nil && parsed.TextbookInfo != nil {
		payload := models.AnalysisPayload{
			TextbookTitle:  parsed.TextbookInfo.Title,
			TextbookAuthor: parsed.TextbookInfo.Author,
			TextbookSource: parsed.TextbookInfo.Source,
			RawAnalysis:    truncate(raw, analysisSnippetLen),
		}
		if err := w.cache.Put(detached, task.Inputs, cache.TierAnalysis, payload); err != nil {
			log.Warn("cache store failed, continuing uncached", "error", err)
		} else {
			log.Info("cached course analysis for future jobs")
		}
	}

	metadata := map[string]any{
		"resource_count":         len(parsed.Resources),
		"pipeline_output_length": len(raw),
		"cache_used":             cachedAnalysis != nil,
	}
	if parsed.TextbookInfo != nil {
		metadata["textbook_info"] = parsed.TextbookInfo
	}

	err = w.store.UpdateJobStatus(detached, task.JobID, models.JobStatusCompleted,
		store.WithResults(parsed.Resources),
		store.WithRawOutput(raw),
		store.WithMetadata(metadata),
		store.WithStatusMessage("Resource discovery completed successfully"))
	if errors.Is(err, store.ErrAlreadyTerminal) {
		log.Info("job finished after cancellation, result discarded")
		return
	}
	if err != nil {
		// Losing a completed result silently is unacceptable; this is the
		// one place a store failure is escalated loudly.
		log.Error("FAILED TO PERSIST COMPLETED RESULT", "error", err)
		return
	}
	log.Info("job completed", "resources", len(parsed.Resources))
}

// lookupAnalysis checks the analysis cache tier, degrading every failure to
// a miss.
func (w *Worker) lookupAnalysis(ctx context.Context, task *broker.Task, log *slog.Logger) *models.AnalysisPayload {
	raw, hit, err := w.cache.Get(ctx, task.Inputs, cache.TierAnalysis, task.BypassCache)
	if err != nil {
		log.Warn("cache lookup failed, treating as miss", "error", err)
		return nil
	}
	if !hit {
		return nil
	}
	var payload models.AnalysisPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Warn("corrupt cache payload, treating as miss", "error", err)
		return nil
	}
	return &payload
}

// runPipeline executes the pipeline under a context that a revoke flag can
// cancel. The watch goroutine lives only for the duration of the call.
func (w *Worker) runPipeline(ctx context.Context, jobID uuid.UUID, inputs models.DiscoveryInputs) (string, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		ticker := time.NewTicker(w.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				revoked, err := w.broker.Revoked(runCtx, jobID)
				if err == nil && revoked {
					cancel()
					return
				}
			}
		}
	}()

	raw, err := w.runner.Run(runCtx, inputs)
	cancel()
	<-watchDone
	return raw, err
}

// jobRevoked reports whether the job's task carries a revoke flag.
func (w *Worker) jobRevoked(ctx context.Context, jobID uuid.UUID) bool {
	revoked, err := w.broker.Revoked(ctx, jobID)
	return err == nil && revoked
}

// writeTerminal attempts a CAS-guarded terminal write, treating a lost race
// as a logged no-op and anything else as a loud failure.
func (w *Worker) writeTerminal(ctx context.Context, jobID uuid.UUID, status string, opts ...store.JobUpdateOption) {
	err := w.store.UpdateJobStatus(ctx, jobID, status, opts...)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrAlreadyTerminal):
		w.logger.Info("terminal write lost race, job already terminal", "job_id", jobID, "status", status)
	case errors.Is(err, store.ErrNotFound):
		w.logger.Warn("terminal write for missing job", "job_id", jobID, "status", status)
	default:
		w.logger.Error("terminal write failed", "job_id", jobID, "status", status, "error", err)
	}
}

// scanOutputError checks the head of the report for the pipeline's ERROR:
// sentinel and extracts the message.
func scanOutputError(raw string) (string, bool) {
	head := truncate(raw, 500)
	idx := strings.Index(head, "ERROR:")
	if idx < 0 {
		return "", false
	}
	msg := head[idx+len("ERROR:"):]
	if nl := strings.IndexByte(msg, '\n'); nl >= 0 {
		msg = msg[:nl]
	}
	if msg = strings.TrimSpace(msg); msg == "" {
		msg = "Cannot access provided resources"
	}
	return msg, true
}

// userMessage maps pipeline failures to messages fit for a polling client.
func userMessage(err error) string {
	switch {
	case errors.Is(err, pipeline.ErrTimeout):
		return "The discovery pipeline timed out. Please try again."
	case errors.Is(err, pipeline.ErrUnreachable):
		return "The discovery pipeline is currently unavailable. Please try again later."
	}
	return err.Error()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
