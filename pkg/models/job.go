package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

// IsTerminalStatus reports whether a status permits no further transitions.
func IsTerminalStatus(status string) bool {
	return status == JobStatusCompleted || status == JobStatusFailed || status == JobStatusCancelled
}

// Job tracks an async resource-discovery run. The API returns a job_id on
// POST /api/v1/discover; the client polls GET /api/v1/discover/{job_id} until
// the status is terminal. Jobs are created by the API with status=pending,
// moved to running and then to a terminal status by a worker, or to cancelled
// by the cancel path. completed_at is set only on completed and failed.
type Job struct {
	ID            uuid.UUID       `db:"id"             json:"id"`
	Status        string          `db:"status"         json:"status"`
	SearchTitle   string          `db:"search_title"   json:"search_title"`
	Inputs        DiscoveryInputs `db:"inputs"         json:"inputs"`
	Results       []Resource      `db:"results"        json:"results,omitempty"`
	RawOutput     *string         `db:"raw_output"     json:"raw_output,omitempty"`
	Error         *string         `db:"error"          json:"error,omitempty"`
	StatusMessage *string         `db:"status_message" json:"status_message,omitempty"`
	Metadata      map[string]any  `db:"metadata"       json:"metadata,omitempty"`
	CreatedAt     time.Time       `db:"created_at"     json:"created_at"`
	CompletedAt   *time.Time      `db:"completed_at"   json:"completed_at,omitempty"`
	UpdatedAt     time.Time       `db:"updated_at"     json:"updated_at"`
}

// IsTerminal reports whether the job has reached a terminal status.
func (j *Job) IsTerminal() bool {
	return IsTerminalStatus(j.Status)
}
