package tts

import "strings"

// abbreviations are expanded in this order
var abbreviations = []struct {
	abbr string
	full string
}{
	{"kr", "kronor"},
	{"st", "stycken"},
	{"osv", "och så vidare"},
	{"t.ex", "till exempel"},
	{"ca", "cirka"},
}

// PrepareSwedishText terminates the sentence and expands common
// abbreviations that engines otherwise spell out letter by letter.
// Only whole words followed by a space or a period are replaced.
func PrepareSwedishText(text string) string {
	if !strings.HasSuffix(text, ".") && !strings.HasSuffix(text, "!") && !strings.HasSuffix(text, "?") {
		text += "."
	}

	for _, a := range abbreviations {
		text = strings.ReplaceAll(text, " "+a.abbr+" ", " "+a.full+" ")
		text = strings.ReplaceAll(text, " "+a.abbr+".", " "+a.full+".")
	}

	return text
}

// countWords counts whitespace-separated words
func countWords(text string) int {
	return len(strings.Fields(text))
}
