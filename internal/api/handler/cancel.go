package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/scholarsource/scholarsource/internal/api/response"
	"github.com/scholarsource/scholarsource/internal/store"
)

// Canceller requests best-effort cancellation of a dispatched job.
type Canceller interface {
	Cancel(ctx context.Context, jobID uuid.UUID) (bool, error)
}

// NewCancelHandler returns the handler for POST /api/v1/discover/{jobID}/cancel.
// Only pending or running jobs can be cancelled; cancellation of a running
// job is advisory and the worker stops cooperatively.
func NewCancelHandler(st store.Store, canceller Canceller) http.HandlerFunc {
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
				"Could not fetch job, please retry", nil)
			return
		}
		if job.IsTerminal() {
			response.Error(w, http.StatusConflict, "CANNOT_CANCEL",
				"Job has already finished", map[string]string{"status": job.Status})
			return
		}

		revoked, err := canceller.Cancel(r.Context(), jobID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "CANCEL_FAILED",
				"Cancellation failed, please retry", nil)
			return
		}

		message := "Job marked as cancelled. The task was not actively running."
		if revoked {
			message = "Job cancelled successfully. The running task has been signalled to stop."
		}
		response.JSON(w, map[string]any{
			"job_id":  jobID,
			"status":  "cancelled",
			"message": message,
		})
	}
}
