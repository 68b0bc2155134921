// Package pipeline implements the staged render pipeline: download,
// transcription, silence trimming, caption generation, overlay render,
// and loudness normalization.
//
// Each job runs in its own scratch directory; stages read and extend the
// files produced by earlier stages rather than keeping state elsewhere.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/clipforge/clipforge/internal/captions"
	"github.com/clipforge/clipforge/internal/ffmpeg"
	"github.com/clipforge/clipforge/internal/jobs"
	"github.com/clipforge/clipforge/internal/transcribe"
)

// Result is the outcome of a successful render.
type Result struct {
	// FinalPath is the rendered MP4 inside the job scratch directory.
	// It is only valid until Cleanup is called.
	FinalPath string
	// TitleHook is the overlay title selected from the transcript.
	TitleHook string
	// Transcript is the full recognized text.
	Transcript string

	// Cleanup removes the job scratch directory. It is safe to call
	// multiple times and is never nil.
	Cleanup func()
}

// Renderer runs the render pipeline for individual jobs.
type Renderer struct {
	runner *ffmpeg.Runner
	engine transcribe.Engine
	client *http.Client

	workDir          string
	maxDownloadBytes int64
	style            captions.Style
}

type options struct {
	runner *ffmpeg.Runner
	client *http.Client

	maxDownloadBytes int64
	style            captions.Style
}

// Options represents an optional function to override Renderer default values.
type Options func(*options)

// WithStyle overrides the default caption style.
func WithStyle(style captions.Style) Options {
	return func(o *options) {
		o.style = style
	}
}

// WithMaxDownloadBytes caps the size of downloaded source videos. Zero disables the cap.
func WithMaxDownloadBytes(n int64) Options {
	return func(o *options) {
		o.maxDownloadBytes = n
	}
}

// New creates a Renderer writing scratch data under workDir.
func New(workDir string, engine transcribe.Engine, args ...Options) (*Renderer, error) {
	if workDir == "" {
		return nil, fmt.Errorf("workDir must be set")
	}
	if err := os.MkdirAll(workDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %v", err)
	}

	opts := options{
		runner: ffmpeg.NewRunner(),
		client: &http.Client{Timeout: 2 * time.Minute},
		style:  captions.DefaultStyle(),
	}
	for _, opt := range args {
		opt(&opts)
	}

	return &Renderer{
		runner: opts.runner,
		engine: engine,
		client: opts.client,

		workDir:          workDir,
		maxDownloadBytes: opts.maxDownloadBytes,
		style:            opts.style,
	}, nil
}

// Render runs all pipeline stages for the job.
//
// On success the caller owns Result.Cleanup and must call it once done with
// the final file. On error the scratch directory is already removed.
func (r *Renderer) Render(ctx context.Context, job jobs.Job) (res Result, err error) {
	work, err := os.MkdirTemp(r.workDir, "job-")
	if err != nil {
		return Result{}, fmt.Errorf("failed to create job scratch directory: %v", err)
	}

	cleanup := func() {
		if err := os.RemoveAll(work); err != nil {
			slog.Warn("Failed to remove job scratch directory", "dir", work, "err", err)
		}
	}
	defer func() {
		if err != nil {
			cleanup()
		}
	}()

	log := slog.With("job_id", job.ID, "video_id", job.VideoID)

	src := filepath.Join(work, "input.mp4")
	log.Debug("Downloading source video", "url", job.RawURL)
	if err := fetch(ctx, r.client, job.RawURL, src, r.maxDownloadBytes); err != nil {
		return Result{}, err
	}

	wav := filepath.Join(work, "audio.wav")
	if err := r.runner.ExtractAudio(ctx, src, wav); err != nil {
		return Result{}, fmt.Errorf("audio extraction failed: %w", err)
	}

	log.Debug("Transcribing audio")
	transcript, err := r.engine.Transcribe(ctx, transcribe.Request{AudioPath: wav, WorkDir: work})
	if err != nil {
		return Result{}, err
	}

	titleHook := PickTitleHook(transcript.Text)
	log.Info("Selected title hook", "hook", titleHook)

	tight := filepath.Join(work, "tight.mp4")
	pauseTrim := time.Duration(job.Settings.PauseTrimMs) * time.Millisecond
	if err := r.runner.TrimSilence(ctx, src, tight, pauseTrim); err != nil {
		return Result{}, fmt.Errorf("silence trimming failed: %w", err)
	}

	assPath := ""
	if words := transcript.Words(); job.HasCaptions && len(words) > 0 {
		assPath = filepath.Join(work, "captions.ass")
		chunks := captions.WordsToChunks(words, captions.DefaultChunkWords)
		if err := captions.WriteASS(assPath, chunks, r.style); err != nil {
			return Result{}, err
		}
	}

	staged := filepath.Join(work, "staged.mp4")
	overlay := ffmpeg.OverlayOpts{
		Title:         titleHook,
		TitleStart:    job.Settings.Export.HookStartMinSec,
		TitleDuration: job.Settings.Export.HookDurationSec,
		SubtitlePath:  assPath,
	}
	if err := r.runner.Render(ctx, tight, staged, overlay); err != nil {
		return Result{}, fmt.Errorf("overlay render failed: %w", err)
	}

	final := filepath.Join(work, "final.mp4")
	if err := r.runner.Loudnorm(ctx, staged, final, job.Settings.Audio.LUFS, job.Settings.Audio.PeakDB); err != nil {
		return Result{}, fmt.Errorf("loudness normalization failed: %w", err)
	}

	log.Info("Render pipeline finished", "final", final)
	return Result{
		FinalPath:  final,
		TitleHook:  titleHook,
		Transcript: transcript.Text,
		Cleanup:    cleanup,
	}, nil
}
