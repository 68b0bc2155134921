// Package processor drives single render jobs from claim to completion:
// it runs the pipeline, delivers the result callback, and records the
// outcome in the job store.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/clipforge/clipforge/internal/jobs"
	"github.com/clipforge/clipforge/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus"
)

type dStore interface {
	ClaimNext(ctx context.Context) (*jobs.Job, error)
	MarkReady(ctx context.Context, id, titleHook string) error
	MarkFailed(ctx context.Context, id, errMsg string) error
}

type dRenderer interface {
	Render(ctx context.Context, job jobs.Job) (pipeline.Result, error)
}

type dNotifier interface {
	NotifyReadyBackoff(ctx context.Context, job jobs.Job, finalPath string) error
	NotifyFailed(ctx context.Context, job jobs.Job, jobErr error) error
}

// Processor is responsible for processing claimed render jobs.
type Processor struct {
	store    dStore
	renderer dRenderer
	notifier dNotifier

	jobsProcessed *prometheus.CounterVec
}

// New creates a new Processor instance registering its metrics with reg.
func New(store dStore, renderer dRenderer, notifier dNotifier, reg prometheus.Registerer) (*Processor, error) {
	jobsProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "render_jobs_processed_total",
		Help: "Number of render jobs processed, by final status.",
	}, []string{"status"})
	if err := reg.Register(jobsProcessed); err != nil {
		return nil, fmt.Errorf("failed to register processed jobs counter: %v", err)
	}

	return &Processor{
		store:    store,
		renderer: renderer,
		notifier: notifier,

		jobsProcessed: jobsProcessed,
	}, nil
}

// ProcessNext claims the next queued job and processes it to completion.
//
// Errors from the claim itself (including an empty queue) are returned to the
// caller so it can back off. A failed render is a handled outcome, not an
// error: the failure is recorded, the callback notified, and nil returned.
func (p *Processor) ProcessNext(ctx context.Context) error {
	job, err := p.store.ClaimNext(ctx)
	if err != nil {
		return err
	}

	log := slog.With("job_id", job.ID, "video_id", job.VideoID)
	log.Info("Processing render job")

	res, renderErr := p.renderer.Render(ctx, *job)
	if renderErr != nil {
		log.Warn("Render failed", "err", renderErr)
		p.fail(ctx, *job, renderErr)
		// Context errors must propagate so shutdown stops the worker loop.
		if errors.Is(renderErr, ctx.Err()) && ctx.Err() != nil {
			return renderErr
		}
		return nil
	}
	defer res.Cleanup()

	job.TitleHook = res.TitleHook
	if err := p.notifier.NotifyReadyBackoff(ctx, *job, res.FinalPath); err != nil {
		// The render itself succeeded; a lost callback must not fail the job.
		log.Warn("Result callback failed", "err", err)
	}

	if err := p.store.MarkReady(ctx, job.ID, res.TitleHook); err != nil {
		p.jobsProcessed.WithLabelValues(string(jobs.StatusFailed)).Inc()
		return fmt.Errorf("failed to mark job ready: %w", err)
	}

	p.jobsProcessed.WithLabelValues(string(jobs.StatusReady)).Inc()
	log.Info("Render job finished", "title_hook", res.TitleHook)
	return nil
}

func (p *Processor) fail(ctx context.Context, job jobs.Job, renderErr error) {
	if err := p.notifier.NotifyFailed(ctx, job, renderErr); err != nil {
		slog.Warn("Failure callback failed", "job_id", job.ID, "err", err)
	}

	if err := p.store.MarkFailed(ctx, job.ID, renderErr.Error()); err != nil {
		slog.Warn("Failed to mark job failed", "job_id", job.ID, "err", err)
	}

	p.jobsProcessed.WithLabelValues(string(jobs.StatusFailed)).Inc()
}
