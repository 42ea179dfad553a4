package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/scholarsource/scholarsource/internal/api/response"
	"github.com/scholarsource/scholarsource/internal/store"
	"github.com/scholarsource/scholarsource/pkg/models"
)

// jobStatusResponse is the poller-facing view of a job. Identity fields from
// the inputs are surfaced for display without exposing the whole snapshot.
type jobStatusResponse struct {
	JobID         uuid.UUID         `json:"job_id"`
	Status        string            `json:"status"`
	StatusMessage *string           `json:"status_message,omitempty"`
	SearchTitle   string            `json:"search_title"`
	Results       []models.Resource `json:"results,omitempty"`
	RawOutput     *string           `json:"raw_output,omitempty"`
	Error         *string           `json:"error,omitempty"`
	Metadata      map[string]any    `json:"metadata,omitempty"`
	CourseName    string            `json:"course_name,omitempty"`
	BookTitle     string            `json:"book_title,omitempty"`
	BookAuthor    string            `json:"book_author,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}

// NewStatusHandler returns the handler for GET /api/v1/discover/{jobID}.
// This is the read path for polling clients; it only ever touches the job
// store.
func NewStatusHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid job ID", nil)
			return
		}

		job, err := st.GetJob(r.Context(), jobID)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE",
				"Could not fetch job status, please retry", nil)
			return
		}

		response.JSON(w, jobStatusResponse{
			JobID:         job.ID,
			Status:        job.Status,
			StatusMessage: job.StatusMessage,
			SearchTitle:   job.SearchTitle,
			Results:       job.Results,
			RawOutput:     job.RawOutput,
			Error:         job.Error,
			Metadata:      job.Metadata,
			CourseName:    job.Inputs.CourseName,
			BookTitle:     job.Inputs.BookTitle,
			BookAuthor:    job.Inputs.BookAuthor,
			CreatedAt:     job.CreatedAt,
			CompletedAt:   job.CompletedAt,
		})
	}
}
