package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/scholarsource/scholarsource/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateJob persists a new job as a single insert. The caller sets ID,
// Status, SearchTitle, Inputs, and CreatedAt.
func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, status, search_title, inputs, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)`,
		job.ID, job.Status, job.SearchTitle, job.Inputs, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// GetJob fetches a job by ID, returning ErrNotFound when absent.
func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var j models.Job
	err := s.pool.QueryRow(ctx,
		`SELECT id, status, search_title, inputs,
		        COALESCE(results, 'null'::jsonb),
		        raw_output, error, status_message,
		        COALESCE(metadata, 'null'::jsonb),
		        created_at, completed_at, updated_at
		 FROM jobs WHERE id = $1`, id,
	).Scan(&j.ID, &j.Status, &j.SearchTitle, &j.Inputs, &j.Results,
		&j.RawOutput, &j.Error, &j.StatusMessage, &j.Metadata,
		&j.CreatedAt, &j.CompletedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

// UpdateJobStatus writes the new status plus any optional fields in one
// statement, conditioned on the job not yet being terminal. completed_at is
// set in the same write when the job completes or fails, so a poller never
// observes a terminal status without its timestamp. Returns ErrAlreadyTerminal
// when the job already reached a terminal status — concurrent workers racing
// for the same job cannot both land conflicting terminal writes.
func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error {
	params := &UpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	sets := []string{"status = $2", "updated_at = NOW()"}
	args := []any{id, status}
	argIdx := 3

	if status == models.JobStatusCompleted || status == models.JobStatusFailed {
		sets = append(sets, "completed_at = NOW()")
	}
	if params.Results != nil {
		sets = append(sets, fmt.Sprintf("results = $%d", argIdx))
		args = append(args, params.Results)
		argIdx++
	}
	if params.Error != nil {
		sets = append(sets, fmt.Sprintf("error = $%d", argIdx))
		args = append(args, *params.Error)
		argIdx++
	}
	if params.StatusMessage != nil {
		sets = append(sets, fmt.Sprintf("status_message = $%d", argIdx))
		args = append(args, *params.StatusMessage)
		argIdx++
	}
	if params.RawOutput != nil {
		sets = append(sets, fmt.Sprintf("raw_output = $%d", argIdx))
		args = append(args, *params.RawOutput)
		argIdx++
	}
	if params.Metadata != nil {
		sets = append(sets, fmt.Sprintf("metadata = $%d", argIdx))
		args = append(args, params.Metadata)
		argIdx++
	}

	query := fmt.Sprintf(
		`UPDATE jobs SET %s WHERE id = $1 AND status IN ('pending', 'running')`,
		strings.Join(sets, ", "))

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Nothing updated: either the job is gone or it is already terminal.
	var current string
	err = s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job status: %w", err)
	}
	if models.IsTerminalStatus(current) {
		return ErrAlreadyTerminal
	}
	return fmt.Errorf("update job %s: no rows affected from status %q", id, current)
}
