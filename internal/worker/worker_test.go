package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/scholarsource/scholarsource/internal/broker"
	"github.com/scholarsource/scholarsource/internal/cache"
	"github.com/scholarsource/scholarsource/internal/pipeline"
	"github.com/scholarsource/scholarsource/internal/store"
	"github.com/scholarsource/scholarsource/internal/worker"
	"github.com/scholarsource/scholarsource/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeBroker struct {
	mu      sync.Mutex
	revoked bool
	acked   []uuid.UUID
}

func (b *fakeBroker) Publish(ctx context.Context, task broker.Task) error { return nil }
func (b *fakeBroker) Next(ctx context.Context) (*broker.Task, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
func (b *fakeBroker) Revoke(ctx context.Context, jobID uuid.UUID) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revoked = true
	return true, nil
}
func (b *fakeBroker) Revoked(ctx context.Context, jobID uuid.UUID) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.revoked, nil
}
func (b *fakeBroker) Ack(ctx context.Context, jobID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.acked = append(b.acked, jobID)
	return nil
}
func (b *fakeBroker) Ping(ctx context.Context) error { return nil }

func (b *fakeBroker) setRevoked(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revoked = v
}

type fakeStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*models.Job
}

func newFakeStore(jobs ...*models.Job) *fakeStore {
	s := &fakeStore{jobs: make(map[uuid.UUID]*models.Job)}
	for _, j := range jobs {
		s.jobs[j.ID] = j
	}
	return s
}

func (s *fakeStore) Ping(ctx context.Context) error { return nil }

func (s *fakeStore) CreateJob(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *fakeStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *fakeStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...store.JobUpdateOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	if job.IsTerminal() {
		return store.ErrAlreadyTerminal
	}

	params := store.UpdateParams{}
	for _, opt := range opts {
		opt(&params)
	}

	job.Status = status
	if status == models.JobStatusCompleted || status == models.JobStatusFailed {
		now := time.Now().UTC()
		job.CompletedAt = &now
	}
	if params.Results != nil {
		job.Results = params.Results
	}
	job.Error = coalesce(params.Error, job.Error)
	job.StatusMessage = coalesce(params.StatusMessage, job.StatusMessage)
	job.RawOutput = coalesce(params.RawOutput, job.RawOutput)
	if params.Metadata != nil {
		job.Metadata = params.Metadata
	}
	return nil
}

// forceStatus overwrites a job's status directly, simulating a concurrent
// writer landing between worker steps.
func (s *fakeStore) forceStatus(id uuid.UUID, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id].Status = status
}

func (s *fakeStore) job(t *testing.T, id uuid.UUID) *models.Job {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	require.True(t, ok)
	copied := *job
	return &copied
}

func coalesce(next, prev *string) *string {
	if next != nil {
		return next
	}
	return prev
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[cache.Tier]json.RawMessage
	getErr  error
	putErr  error
	puts    []cache.Tier
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[cache.Tier]json.RawMessage)}
}

func (c *fakeCache) Get(ctx context.Context, inputs models.DiscoveryInputs, tier cache.Tier, bypass bool) (json.RawMessage, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if bypass {
		return nil, false, nil
	}
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	raw, ok := c.entries[tier]
	return raw, ok, nil
}

func (c *fakeCache) Put(ctx context.Context, inputs models.DiscoveryInputs, tier cache.Tier, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.putErr != nil {
		return c.putErr
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.entries[tier] = data
	c.puts = append(c.puts, tier)
	return nil
}

func (c *fakeCache) SweepStale(ctx context.Context) (int64, error) { return 0, nil }
func (c *fakeCache) Stats(ctx context.Context) (*cache.Stats, error) {
	return &cache.Stats{}, nil
}

func (c *fakeCache) seedAnalysis(t *testing.T, payload models.AnalysisPayload) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cache.TierAnalysis] = data
}

type fakeRunner struct {
	mu        sync.Mutex
	output    string
	err       error
	fn        func(ctx context.Context, inputs models.DiscoveryInputs) (string, error)
	called    bool
	gotInputs models.DiscoveryInputs
}

func (r *fakeRunner) Run(ctx context.Context, inputs models.DiscoveryInputs) (string, error) {
	r.mu.Lock()
	r.called = true
	r.gotInputs = inputs
	fn := r.fn
	r.mu.Unlock()
	if fn != nil {
		return fn(ctx, inputs)
	}
	return r.output, r.err
}

func (r *fakeRunner) wasCalled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.called
}

// --- fixtures ---

const sampleReport = `## Textbook Information
Title: Operating System Concepts
Author: Silberschatz

## Recommended Resources

**1. OS Course Lectures** (Type: Video)
- Link: https://www.youtube.com/playlist?list=os101
- Source: YouTube
- What it covers: Full lecture series

**2. OSTEP** (Type: Open Textbook)
- Link: https://pages.cs.wisc.edu/~remzi/OSTEP/
- Source: University of Wisconsin
- What it covers: Free operating systems textbook
`

func testJob() *models.Job {
	return &models.Job{
		ID:     uuid.New(),
		Status: models.JobStatusPending,
		Inputs: models.DiscoveryInputs{
			CourseName: "Operating Systems",
			CourseURL:  "https://ocw.example.edu/os",
		},
		CreatedAt: time.Now().UTC(),
	}
}

func testTask(job *models.Job) *broker.Task {
	return &broker.Task{JobID: job.ID, Inputs: job.Inputs, EnqueuedAt: time.Now().UTC()}
}

func newWorker(b broker.Broker, s store.Store, c cache.Cache, r pipeline.Runner) *worker.Worker {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return worker.New(b, s, c, r, logger)
}

// --- tests ---

func TestProcess_CompletesJob(t *testing.T) {
	job := testJob()
	fb := &fakeBroker{}
	fs := newFakeStore(job)
	fc := newFakeCache()
	fr := &fakeRunner{output: sampleReport}

	newWorker(fb, fs, fc, fr).Process(context.Background(), testTask(job))

	got := fs.job(t, job.ID)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	require.Len(t, got.Results, 2)
	assert.Equal(t, "Video", got.Results[0].Type)
	assert.Equal(t, "OS Course Lectures", got.Results[0].Title)
	assert.Equal(t, "Textbook", got.Results[1].Type)
	require.NotNil(t, got.RawOutput)
	require.NotNil(t, got.StatusMessage)
	assert.Equal(t, "Resource discovery completed successfully", *got.StatusMessage)
	assert.Equal(t, 2, got.Metadata["resource_count"])
	assert.Equal(t, false, got.Metadata["cache_used"])

	// The fresh analysis was cached for future jobs.
	assert.Equal(t, []cache.Tier{cache.TierAnalysis}, fc.puts)

	assert.Equal(t, []uuid.UUID{job.ID}, fb.acked)
}

func TestProcess_DropsUnknownJob(t *testing.T) {
	fb := &fakeBroker{}
	fs := newFakeStore()
	fr := &fakeRunner{output: sampleReport}

	job := testJob()
	newWorker(fb, fs, newFakeCache(), fr).Process(context.Background(), testTask(job))

	assert.False(t, fr.wasCalled())
	assert.Len(t, fb.acked, 1)
}

func TestProcess_SkipsTerminalJob(t *testing.T) {
	job := testJob()
	job.Status = models.JobStatusCancelled
	fb := &fakeBroker{}
	fs := newFakeStore(job)
	fr := &fakeRunner{output: sampleReport}

	newWorker(fb, fs, newFakeCache(), fr).Process(context.Background(), testTask(job))

	assert.False(t, fr.wasCalled())
	assert.Equal(t, models.JobStatusCancelled, fs.job(t, job.ID).Status)
	assert.Len(t, fb.acked, 1)
}

func TestProcess_CachedAnalysisSkipsFirstStage(t *testing.T) {
	job := testJob()
	fc := newFakeCache()
	fc.seedAnalysis(t, models.AnalysisPayload{
		TextbookTitle:  "Operating System Concepts",
		TextbookAuthor: "Silberschatz",
	})
	fr := &fakeRunner{output: sampleReport}
	fs := newFakeStore(job)

	newWorker(&fakeBroker{}, fs, fc, fr).Process(context.Background(), testTask(job))

	// The textbook identity travels to the pipeline so it skips its analysis
	// stage.
	assert.Equal(t, "Operating System Concepts", fr.gotInputs.BookTitle)
	assert.Equal(t, "Silberschatz", fr.gotInputs.BookAuthor)

	got := fs.job(t, job.ID)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, true, got.Metadata["cache_used"])

	// A hit never re-populates the analysis tier.
	assert.Empty(t, fc.puts)
}

func TestProcess_BypassSkipsCacheLookup(t *testing.T) {
	job := testJob()
	fc := newFakeCache()
	fc.seedAnalysis(t, models.AnalysisPayload{TextbookTitle: "stale"})
	fr := &fakeRunner{output: sampleReport}
	fs := newFakeStore(job)

	task := testTask(job)
	task.BypassCache = true
	newWorker(&fakeBroker{}, fs, fc, fr).Process(context.Background(), task)

	assert.Empty(t, fr.gotInputs.BookTitle)
	got := fs.job(t, job.ID)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, false, got.Metadata["cache_used"])
	// The fresh result still refreshes the cache.
	assert.Equal(t, []cache.Tier{cache.TierAnalysis}, fc.puts)
}

func TestProcess_CacheLookupErrorIsMiss(t *testing.T) {
	job := testJob()
	fc := newFakeCache()
	fc.getErr = errors.New("connection refused")
	fs := newFakeStore(job)

	newWorker(&fakeBroker{}, fs, fc, &fakeRunner{output: sampleReport}).
		Process(context.Background(), testTask(job))

	got := fs.job(t, job.ID)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, false, got.Metadata["cache_used"])
}

func TestProcess_CacheWriteFailureIsNonFatal(t *testing.T) {
	job := testJob()
	fc := newFakeCache()
	fc.putErr = errors.New("connection refused")
	fs := newFakeStore(job)

	newWorker(&fakeBroker{}, fs, fc, &fakeRunner{output: sampleReport}).
		Process(context.Background(), testTask(job))

	assert.Equal(t, models.JobStatusCompleted, fs.job(t, job.ID).Status)
}

func TestProcess_PipelineUnreachableFailsJob(t *testing.T) {
	job := testJob()
	fs := newFakeStore(job)
	fr := &fakeRunner{err: pipeline.ErrUnreachable}

	newWorker(&fakeBroker{}, fs, newFakeCache(), fr).Process(context.Background(), testTask(job))

	got := fs.job(t, job.ID)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	require.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.Error)
	assert.Equal(t, "The discovery pipeline is currently unavailable. Please try again later.", *got.Error)
	require.NotNil(t, got.StatusMessage)
	assert.Equal(t, "Job failed due to an error", *got.StatusMessage)
}

func TestProcess_OutputErrorSentinelFailsJob(t *testing.T) {
	job := testJob()
	fs := newFakeStore(job)
	fr := &fakeRunner{output: "ERROR: Cannot access the course page\n\nNothing else to report."}

	newWorker(&fakeBroker{}, fs, newFakeCache(), fr).Process(context.Background(), testTask(job))

	got := fs.job(t, job.ID)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, "Cannot access the course page", *got.Error)
	require.NotNil(t, got.StatusMessage)
	assert.Equal(t, "Failed to access course or book resources", *got.StatusMessage)
	require.NotNil(t, got.RawOutput)
}

func TestProcess_RevokedRunCancelsJob(t *testing.T) {
	job := testJob()
	fb := &fakeBroker{}
	fb.setRevoked(true)
	fs := newFakeStore(job)
	fr := &fakeRunner{err: context.Canceled}

	newWorker(fb, fs, newFakeCache(), fr).Process(context.Background(), testTask(job))

	got := fs.job(t, job.ID)
	assert.Equal(t, models.JobStatusCancelled, got.Status)
	assert.Nil(t, got.CompletedAt)
	require.NotNil(t, got.StatusMessage)
	assert.Equal(t, "Job cancelled during execution", *got.StatusMessage)
}

func TestProcess_RevokeWatchCancelsBlockedPipeline(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow test")
	}
	job := testJob()
	fb := &fakeBroker{}
	fs := newFakeStore(job)
	fr := &fakeRunner{fn: func(ctx context.Context, inputs models.DiscoveryInputs) (string, error) {
		fb.setRevoked(true)
		<-ctx.Done()
		return "", ctx.Err()
	}}

	done := make(chan struct{})
	go func() {
		defer close(done)
		newWorker(fb, fs, newFakeCache(), fr).Process(context.Background(), testTask(job))
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("worker did not observe revoke flag")
	}
	assert.Equal(t, models.JobStatusCancelled, fs.job(t, job.ID).Status)
}

func TestProcess_ShutdownStillWritesTerminalState(t *testing.T) {
	job := testJob()
	fb := &fakeBroker{}
	fs := newFakeStore(job)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fr := &fakeRunner{fn: func(runCtx context.Context, inputs models.DiscoveryInputs) (string, error) {
		// The worker's loop context dies mid-run, as on SIGTERM.
		cancel()
		<-runCtx.Done()
		return "", runCtx.Err()
	}}

	newWorker(fb, fs, newFakeCache(), fr).Process(ctx, testTask(job))

	// The store and broker reject calls on a dead context, so the terminal
	// write and the ack only land if the worker detaches them from ctx.
	got := fs.job(t, job.ID)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	require.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.Error)
	assert.Contains(t, *got.Error, "shut down")
	require.NotNil(t, got.StatusMessage)
	assert.Equal(t, "Job failed due to an error", *got.StatusMessage)
	assert.Len(t, fb.acked, 1)
}

func TestProcess_ShutdownIsNotMistakenForCancellation(t *testing.T) {
	job := testJob()
	fb := &fakeBroker{}
	fs := newFakeStore(job)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fr := &fakeRunner{fn: func(runCtx context.Context, inputs models.DiscoveryInputs) (string, error) {
		cancel()
		return "", context.Canceled
	}}

	newWorker(fb, fs, newFakeCache(), fr).Process(ctx, testTask(job))

	// No revoke flag was set, so the context error alone must not label the
	// job as user-cancelled.
	got := fs.job(t, job.ID)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.NotEqual(t, models.JobStatusCancelled, got.Status)
}

func TestProcess_LateCompletionDiscarded(t *testing.T) {
	job := testJob()
	fs := newFakeStore(job)
	fr := &fakeRunner{fn: func(ctx context.Context, inputs models.DiscoveryInputs) (string, error) {
		// A concurrent cancel lands while the pipeline is running.
		fs.forceStatus(job.ID, models.JobStatusCancelled)
		return sampleReport, nil
	}}

	newWorker(&fakeBroker{}, fs, newFakeCache(), fr).Process(context.Background(), testTask(job))

	got := fs.job(t, job.ID)
	assert.Equal(t, models.JobStatusCancelled, got.Status)
	assert.Nil(t, got.Results)
}

func TestProcess_PanicEndsInFailedStatus(t *testing.T) {
	job := testJob()
	fb := &fakeBroker{}
	fs := newFakeStore(job)
	fr := &fakeRunner{fn: func(ctx context.Context, inputs models.DiscoveryInputs) (string, error) {
		panic("boom")
	}}

	newWorker(fb, fs, newFakeCache(), fr).Process(context.Background(), testTask(job))

	got := fs.job(t, job.ID)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Contains(t, *got.Error, "internal error")
	assert.Len(t, fb.acked, 1)
}
