package handlers

import (
	"context"

	"github.com/clipforge/clipforge/internal/jobs"
)

// Queue is the job store surface the handlers need.
type Queue interface {
	// Enqueue inserts a new queued render job.
	Enqueue(ctx context.Context, job jobs.Job) error
	// Get returns the job with the given id.
	Get(ctx context.Context, id string) (*jobs.Job, error)
}

// SettingsProvider exposes the render setting defaults applied to incoming jobs.
type SettingsProvider interface {
	Defaults() jobs.Settings
}
