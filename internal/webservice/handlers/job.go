package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/clipforge/clipforge/internal/database"
	"github.com/google/uuid"
)

// JobStatus is the handler reporting the state of a render job.
type JobStatus struct {
	queue Queue
}

// NewJobStatus creates a new JobStatus handler.
func NewJobStatus(queue Queue) *JobStatus {
	return &JobStatus{queue: queue}
}

// jobResponse is the wire form of a job status record. Internal fields like
// the source URL are deliberately not echoed back.
type jobResponse struct {
	JobID     string    `json:"job_id"`
	VideoID   string    `json:"video_id"`
	Status    string    `json:"status"`
	TitleHook string    `json:"title_hook,omitempty"`
	ErrorMsg  string    `json:"error_msg,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ServeHTTP handles incoming job status requests.
func (h *JobStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := uuid.Validate(id); err != nil {
		http.Error(w, "Invalid job id", http.StatusBadRequest)
		return
	}

	job, err := h.queue.Get(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to fetch job", http.StatusInternalServerError)
		slog.Error("Failed to fetch job", "job_id", id, "err", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(jobResponse{
		JobID:     job.ID,
		VideoID:   job.VideoID,
		Status:    string(job.Status),
		TitleHook: job.TitleHook,
		ErrorMsg:  job.ErrorMsg,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}); err != nil {
		slog.Warn("Failed to write response", "job_id", id, "err", err)
	}
}
