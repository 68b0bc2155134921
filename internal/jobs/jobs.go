// Package jobs defines the render job model shared between the HTTP ingress,
// the job store, and the worker pool.
package jobs

import (
	"time"
)

// Status represents the lifecycle state of a render job.
type Status string

// Job lifecycle states. A job is queued on ingest, running while a worker
// holds its claim, and ends ready or failed.
const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// CallbackStatus values reported to the result webhook.
const (
	CallbackReady  = "READY"
	CallbackFailed = "FAILED"
)

// Job is a single render request accepted by the service.
type Job struct {
	ID          string
	VideoID     string
	RawURL      string
	HasCaptions bool
	Settings    Settings

	Status    Status
	TitleHook string
	ErrorMsg  string

	CreatedAt time.Time
	UpdatedAt time.Time
}
