package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/scholarsource/scholarsource/internal/api/response"
	"github.com/scholarsource/scholarsource/internal/store"
	"github.com/scholarsource/scholarsource/pkg/models"
)

// Submitter enqueues a created job for asynchronous execution.
type Submitter interface {
	Submit(ctx context.Context, jobID uuid.UUID, inputs models.DiscoveryInputs, bypassCache bool) error
}

// discoverRequest mirrors DiscoveryInputs plus the bypass flag. Empty strings
// and unset fields are equivalent.
type discoverRequest struct {
	models.DiscoveryInputs
	BypassCache bool `json:"bypass_cache"`
}

func (r *discoverRequest) trimmed() models.DiscoveryInputs {
	in := r.DiscoveryInputs
	in.UniversityName = strings.TrimSpace(in.UniversityName)
	in.CourseName = strings.TrimSpace(in.CourseName)
	in.CourseURL = strings.TrimSpace(in.CourseURL)
	in.Textbook = strings.TrimSpace(in.Textbook)
	in.TopicsList = strings.TrimSpace(in.TopicsList)
	in.BookTitle = strings.TrimSpace(in.BookTitle)
	in.BookAuthor = strings.TrimSpace(in.BookAuthor)
	in.ISBN = strings.TrimSpace(in.ISBN)
	in.BookURL = strings.TrimSpace(in.BookURL)
	in.ExcludedSites = strings.TrimSpace(in.ExcludedSites)
	in.TargetedSites = strings.TrimSpace(in.TargetedSites)
	return in
}

// NewDiscoverHandler returns the handler for POST /api/v1/discover. It
// creates the job first, then enqueues it; if enqueueing fails the job is
// marked failed so the client never polls a job that will not run.
func NewDiscoverHandler(st store.Store, submitter Submitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req discoverRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		inputs := req.trimmed()
		if !inputs.HasIdentity() {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"At least one of course_url, course_name, book_title+book_author, isbn, or book_url is required", nil)
			return
		}

		job := &models.Job{
			ID:          uuid.New(),
			Status:      models.JobStatusPending,
			SearchTitle: inputs.SearchTitle(),
			Inputs:      inputs,
			CreatedAt:   time.Now().UTC(),
		}
		if err := st.CreateJob(r.Context(), job); err != nil {
			slog.Error("job creation failed", "error", err)
			response.Error(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE",
				"Could not create job, please try again", nil)
			return
		}

		if err := submitter.Submit(r.Context(), job.ID, inputs, req.BypassCache); err != nil {
			slog.Error("job submission failed", "job_id", job.ID, "error", err)
			_ = st.UpdateJobStatus(r.Context(), job.ID, models.JobStatusFailed,
				store.WithError("Failed to queue job for execution"))
			response.Error(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE",
				"Could not queue job, please try again", nil)
			return
		}

		response.Accepted(w, map[string]any{
			"job_id":  job.ID,
			"status":  job.Status,
			"message": "Job created successfully. Use job_id to poll status.",
		})
	}
}
