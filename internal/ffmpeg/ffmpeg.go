// Package ffmpeg wraps the ffmpeg command line tool for the render pipeline.
//
// Every stage is a single ffmpeg invocation building on the previous stage's
// output file. Filter arguments are constructed here so escaping rules stay
// in one place.
package ffmpeg

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/clipforge/clipforge/internal/cmdutils"
)

// Output geometry of rendered clips.
const (
	FrameWidth  = 1080
	FrameHeight = 1920
)

const stageTimeout = 30 * time.Minute

// Runner invokes ffmpeg.
type Runner struct {
	// Bin is the ffmpeg executable. Defaults to "ffmpeg" on PATH.
	Bin string
}

// NewRunner returns a Runner using the ffmpeg binary on PATH.
func NewRunner() *Runner {
	return &Runner{Bin: "ffmpeg"}
}

// OverlayOpts controls the burned-in title overlay and optional subtitles
// of the final render pass.
type OverlayOpts struct {
	// Title is the hook text drawn near the top of the frame.
	Title string
	// TitleStart and TitleDuration bound the overlay display window, in seconds.
	TitleStart    float64
	TitleDuration float64

	// SubtitlePath is an optional ASS file burned into the video.
	SubtitlePath string
}

// ExtractAudio writes the audio track of src as mono 16 kHz WAV, the input
// format transcription engines expect.
func (r *Runner) ExtractAudio(ctx context.Context, src, dst string) error {
	return r.run(ctx,
		"-y", "-i", src,
		"-vn", "-ac", "1", "-ar", "16000",
		dst,
	)
}

// TrimSilence removes leading and trailing silence longer than pauseTrim,
// copying the video stream untouched.
func (r *Runner) TrimSilence(ctx context.Context, src, dst string, pauseTrim time.Duration) error {
	secs := formatFloat(pauseTrim.Seconds())
	filter := fmt.Sprintf(
		"silenceremove=start_periods=1:start_silence=%s:stop_periods=1:stop_silence=%s:detection=peak",
		secs, secs,
	)

	return r.run(ctx,
		"-y", "-i", src,
		"-af", filter,
		"-c:v", "copy",
		dst,
	)
}

// Render scales and crops src to the vertical frame, burns the title overlay
// and optional subtitles, and encodes the result.
func (r *Runner) Render(ctx context.Context, src, dst string, opts OverlayOpts) error {
	return r.run(ctx,
		"-y", "-i", src,
		"-vf", BuildVideoFilter(opts),
		"-c:v", "libx264", "-preset", "veryfast", "-crf", "18",
		"-c:a", "aac", "-b:a", "160k",
		dst,
	)
}

// Loudnorm normalizes audio loudness to the target integrated LUFS and true
// peak, copying the video stream untouched.
func (r *Runner) Loudnorm(ctx context.Context, src, dst string, lufs, peakDB float64) error {
	filter := fmt.Sprintf("loudnorm=I=%s:TP=%s:LRA=11", formatFloat(lufs), formatFloat(peakDB))

	return r.run(ctx,
		"-y", "-i", src,
		"-af", filter,
		"-c:v", "copy",
		"-c:a", "aac", "-b:a", "160k",
		dst,
	)
}

func (r *Runner) run(ctx context.Context, args ...string) error {
	bin := r.Bin
	if bin == "" {
		bin = "ffmpeg"
	}

	_, _, err := cmdutils.RunWithTimeout(ctx, stageTimeout, bin, args...)
	return err
}

// BuildVideoFilter assembles the -vf chain for the render pass:
// scale to cover the vertical frame, crop, optional subtitles, title drawtext.
func BuildVideoFilter(opts OverlayOpts) string {
	parts := []string{
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase", FrameWidth, FrameHeight),
		fmt.Sprintf("crop=%d:%d", FrameWidth, FrameHeight),
	}

	if opts.SubtitlePath != "" {
		parts = append(parts, fmt.Sprintf("subtitles='%s'", opts.SubtitlePath))
	}

	parts = append(parts, drawtext(opts))
	return strings.Join(parts, ",")
}

// drawtext builds the title overlay filter. The enable window uses escaped
// commas since between() arguments would otherwise split the filter chain.
func drawtext(opts OverlayOpts) string {
	return fmt.Sprintf(
		`drawtext=text='%s':fontcolor=white:fontsize=64:borderw=4:bordercolor=black:x=(w-tw)/2:y=h*0.2:enable='between(t\,%s\,%s)'`,
		EscapeDrawtext(opts.Title),
		formatFloat(opts.TitleStart),
		formatFloat(opts.TitleStart+opts.TitleDuration),
	)
}

// EscapeDrawtext escapes characters that would terminate or corrupt a
// drawtext text value.
func EscapeDrawtext(s string) string {
	s = strings.ReplaceAll(s, `:`, `\:`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
