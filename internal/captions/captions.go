// Package captions turns word-level transcription timestamps into burnable
// ASS subtitle files.
//
// Words are grouped into short chunks so captions keep pace with speech the
// way short-form vertical video expects, rather than showing full sentences.
package captions

import (
	"fmt"
	"strings"

	"github.com/clipforge/clipforge/internal/fileutils"
	"github.com/clipforge/clipforge/internal/transcribe"
	"github.com/ubuntu/decorate"
)

// DefaultChunkWords is the number of words shown per caption.
const DefaultChunkWords = 3

// Chunk is a single caption: a short run of words with its display window.
type Chunk struct {
	Text  string
	Start float64
	End   float64
}

// WordsToChunks groups words into chunks of at most maxWords.
// Words with empty text are dropped; timing spans the first to last word of the group.
func WordsToChunks(words []transcribe.Word, maxWords int) []Chunk {
	if maxWords <= 0 {
		maxWords = DefaultChunkWords
	}

	var chunks []Chunk
	for i := 0; i < len(words); i += maxWords {
		group := words[i:min(i+maxWords, len(words))]

		parts := make([]string, 0, len(group))
		for _, w := range group {
			if t := strings.TrimSpace(w.Text); t != "" {
				parts = append(parts, t)
			}
		}
		text := strings.Join(parts, " ")
		if text == "" {
			continue
		}

		chunks = append(chunks, Chunk{
			Text:  text,
			Start: group[0].Start,
			End:   group[len(group)-1].End,
		})
	}

	return chunks
}

// WriteASS writes the chunks as an ASS subtitle file at path using the given style.
func WriteASS(path string, chunks []Chunk, style Style) (err error) {
	defer decorate.OnError(&err, "could not write subtitle file %s:", path)

	var b strings.Builder
	b.WriteString(style.header())
	for _, c := range chunks {
		fmt.Fprintf(&b, "Dialogue: 0,%s,%s,%s,,0,0,0,,%s\n",
			Timestamp(c.Start), Timestamp(c.End), style.Name, c.Text)
	}

	return fileutils.AtomicWrite(path, []byte(b.String()))
}

// Timestamp formats seconds as an ASS event time (H:MM:SS.cc, centisecond precision).
// Negative inputs are clamped to zero.
func Timestamp(t float64) string {
	t = max(0.0, t)

	whole := int(t)
	cs := int((t-float64(whole))*100 + 0.5)
	if cs == 100 {
		// Rounds up into the next full second.
		whole++
		cs = 0
	}

	s := whole % 60
	m := (whole / 60) % 60
	h := whole / 3600
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, cs)
}
