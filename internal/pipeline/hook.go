package pipeline

import (
	"regexp"
	"strings"
)

// fallbackHook is used when the transcript yields no usable sentence.
const fallbackHook = "Watch this"

// maxHookWords caps the overlay length so the title stays readable at 64pt.
const maxHookWords = 8

var strongWordRE = regexp.MustCompile(`(?i)\b(how|what|why|stop|secret|best|avoid|never)\b`)

// PickTitleHook selects the overlay title from a transcript.
//
// It prefers the first sentence containing a curiosity word (how, what, why,
// stop, secret, best, avoid, never), falling back to the first sentence,
// truncated to a few words.
func PickTitleHook(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return fallbackHook
	}

	candidates := splitSentences(text)

	line := ""
	for _, c := range candidates {
		if strongWordRE.MatchString(c) {
			line = c
			break
		}
	}
	if line == "" {
		if len(candidates) == 0 {
			return fallbackHook
		}
		line = candidates[0]
	}

	words := strings.Fields(line)
	if len(words) > maxHookWords {
		return strings.Join(words[:maxHookWords], " ")
	}
	return line
}

// splitSentences splits text at whitespace following sentence punctuation,
// keeping the punctuation with its sentence.
func splitSentences(text string) []string {
	var sentences []string

	start := 0
	runes := []rune(text)
	for i := 0; i < len(runes)-1; i++ {
		if !isSentenceEnd(runes[i]) || !isSpace(runes[i+1]) {
			continue
		}

		sentences = append(sentences, string(runes[start:i+1]))
		// Skip the whitespace run to the start of the next sentence.
		j := i + 1
		for j < len(runes) && isSpace(runes[j]) {
			j++
		}
		start = j
		i = j - 1
	}

	if start < len(runes) {
		sentences = append(sentences, string(runes[start:]))
	}
	return sentences
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
