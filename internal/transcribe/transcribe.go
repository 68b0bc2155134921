// Package transcribe provides speech-to-text with word-level timestamps for
// the render pipeline.
package transcribe

import "context"

// Request describes a single transcription of an audio file on disk.
type Request struct {
	// AudioPath is the path to a mono 16 kHz WAV file.
	AudioPath string
	// WorkDir is a scratch directory the engine may write intermediate files to.
	WorkDir string
}

// Engine is implemented by transcription backends.
type Engine interface {
	Transcribe(ctx context.Context, req Request) (*Transcript, error)
}

// Transcript is the result of transcribing an audio file.
type Transcript struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
	Language string    `json:"language"`
}

// Segment is a contiguous span of recognized speech.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Words []Word  `json:"words"`
}

// Word is a single recognized word with its timing.
type Word struct {
	Text  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Words flattens the per-segment word timings, dropping entries without
// usable timing information.
func (t *Transcript) Words() []Word {
	var words []Word
	for _, seg := range t.Segments {
		for _, w := range seg.Words {
			if w.Text == "" || (w.Start == 0 && w.End == 0) {
				continue
			}
			words = append(words, w)
		}
	}
	return words
}
