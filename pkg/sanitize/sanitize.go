// Package sanitize cleans generated text before it is shown to a user.
package sanitize

import "strings"

// EndOfTurn is the chat control token some completion models leak into
// their output.
const EndOfTurn = "<|im_end|>"

const separator = ". "

// Denylist holds the words that drop a whole sentence when present.
var Denylist = []string{
	"rude",
	"critical",
	"negative",
	"aggressive",
	"promoting",
	"unhelpful",
	"spamming",
}

// Sanitize removes control tokens and every ". "-separated sentence that
// mentions a denylisted word, then trims surrounding whitespace.
func Sanitize(raw string) string {
	text := stripToken(raw)

	kept := make([]string, 0, strings.Count(text, separator)+1)
	for _, sentence := range strings.Split(text, separator) {
		if !flagged(sentence) {
			kept = append(kept, sentence)
		}
	}

	return strings.TrimSpace(strings.Join(kept, separator))
}

// stripToken loops because removing one token can splice a new one together.
func stripToken(s string) string {
	for strings.Contains(s, EndOfTurn) {
		s = strings.ReplaceAll(s, EndOfTurn, "")
	}
	return s
}

func flagged(sentence string) bool {
	lower := strings.ToLower(sentence)
	for _, word := range Denylist {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}
