package tts

import (
	"regexp"
	"strings"
	"unicode"
)

// DefaultMaxTextLength caps the text handed to providers, in runes.
const DefaultMaxTextLength = 3000

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]*>`)
	markdownRe   = regexp.MustCompile("[*_`#~]+")
	linkRe       = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Sanitize strips markup that reads poorly aloud and truncates to maxRunes.
// It runs once, before the first provider call, so every provider in the
// chain receives identical text. maxRunes <= 0 applies the default cap.
func Sanitize(text string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = DefaultMaxTextLength
	}

	text = linkRe.ReplaceAllString(text, "$1")
	text = htmlTagRe.ReplaceAllString(text, " ")
	text = markdownRe.ReplaceAllString(text, "")
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}

	// Cut at the last word boundary inside the cap so speech doesn't stop
	// mid-word.
	cut := maxRunes
	for i := maxRunes - 1; i > maxRunes/2; i-- {
		if unicode.IsSpace(runes[i]) {
			cut = i
			break
		}
	}
	return strings.TrimSpace(string(runes[:cut]))
}
