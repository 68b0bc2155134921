package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/clipforge/clipforge/internal/cmdutils"
)

// DefaultModel is the transcription model used when none is configured.
const DefaultModel = "tiny"

const transcribeTimeout = 30 * time.Minute

// WhisperCLI runs the whisper command line tool and parses its JSON output.
//
// The tool is invoked once per job with word timestamps enabled; model weights
// are cached in CacheDir across invocations.
type WhisperCLI struct {
	// Bin is the whisper executable. Defaults to "whisper" on PATH.
	Bin string
	// Model is the model name passed to the tool (tiny, base, small, ...).
	Model string
	// CacheDir is where the tool downloads and caches model weights.
	CacheDir string
}

// NewWhisperCLI creates a whisper CLI engine for the given model and cache directory.
func NewWhisperCLI(model, cacheDir string) *WhisperCLI {
	if model == "" {
		model = DefaultModel
	}
	return &WhisperCLI{
		Bin:      "whisper",
		Model:    model,
		CacheDir: cacheDir,
	}
}

// Transcribe runs whisper on the request audio and returns the parsed transcript.
func (w *WhisperCLI) Transcribe(ctx context.Context, req Request) (*Transcript, error) {
	bin := w.Bin
	if bin == "" {
		bin = "whisper"
	}

	outDir := filepath.Join(req.WorkDir, "transcript")
	if err := os.MkdirAll(outDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create transcript directory: %v", err)
	}

	args := []string{
		req.AudioPath,
		"--model", w.Model,
		"--output_format", "json",
		"--output_dir", outDir,
		"--word_timestamps", "True",
		"--fp16", "False",
	}
	if w.CacheDir != "" {
		args = append(args, "--model_dir", w.CacheDir)
	}

	ctx, cancel := context.WithTimeout(ctx, transcribeTimeout)
	defer cancel()

	if _, _, err := cmdutils.Run(ctx, bin, args...); err != nil {
		return nil, fmt.Errorf("transcription failed: %w", err)
	}

	// whisper names the output after the input file, with the audio extension replaced.
	base := filepath.Base(req.AudioPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	outPath := filepath.Join(outDir, base+".json")

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("transcription produced no output: %v", err)
	}

	return ParseOutput(data)
}

// ParseOutput decodes the JSON document whisper writes alongside its transcription.
func ParseOutput(data []byte) (*Transcript, error) {
	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse transcription output: %v", err)
	}

	t.Text = strings.TrimSpace(t.Text)
	return &t, nil
}
