package stt

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// swedishIndicators are common Swedish words; each one found raises the quality score
var swedishIndicators = []string{"är", "och", "att", "jag", "det", "som", "en", "på", "med", "för"}

// Clean collapses whitespace, capitalizes the first letter and terminates the sentence
func Clean(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return ""
	}

	r, size := utf8.DecodeRuneInString(text)
	if !unicode.IsUpper(r) {
		text = string(unicode.ToUpper(r)) + text[size:]
	}

	if !strings.HasSuffix(text, ".") && !strings.HasSuffix(text, "!") && !strings.HasSuffix(text, "?") {
		text += "."
	}
	return text
}

// AssessQuality scores a transcription between 0 and 1 from the model
// confidence, the word count relative to the audio size and Swedish word use.
func AssessQuality(text string, confidence float64, audioSize int) float64 {
	if text == "" {
		return 0
	}

	score := confidence
	words := len(strings.Fields(text))

	// Rough estimate: one word per 10 kB of audio
	expected := audioSize / 10000
	if expected < 1 {
		expected = 1
	}
	if float64(words) < float64(expected)*0.3 {
		score *= 0.7
	}

	if words >= 5 && words <= 100 {
		score *= 1.1
	}

	lower := strings.ToLower(text)
	count := 0
	for _, w := range swedishIndicators {
		if strings.Contains(lower, w) {
			count++
		}
	}
	if count > 0 {
		score *= 1 + float64(count)*0.02
	}

	if score > 1 {
		score = 1
	}
	return score
}
