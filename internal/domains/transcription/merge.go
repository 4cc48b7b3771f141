package transcription

import (
	"regexp"
	"strings"
	"unicode"
)

// longest run of words compared when stitching two windows
const maxOverlapWords = 40

var (
	markerPattern = regexp.MustCompile(`\[(?i)(?:BLANK_AUDIO|MUSIC|APPLAUSE|LAUGHTER|INAUDIBLE|NOISE|CROSSTALK|SILENCE)\]`)
	parenPattern  = regexp.MustCompile(`\([^)]*(?i)(music|noise|applause|laughter)[^)]*\)`)
	spacePattern  = regexp.MustCompile(`\s+`)
)

// cleanChunk drops noise markers and folds whitespace.
func cleanChunk(text string) string {
	text = markerPattern.ReplaceAllString(text, "")
	text = parenPattern.ReplaceAllString(text, "")
	text = spacePattern.ReplaceAllString(text, " ")
	text = strings.ReplaceAll(text, " .", ".")
	text = strings.ReplaceAll(text, " ,", ",")
	text = strings.ReplaceAll(text, " ?", "?")
	text = strings.ReplaceAll(text, " !", "!")
	return strings.TrimSpace(text)
}

// mergeChunks joins window transcripts in order, dropping the words the
// overlap made both windows hear.
func mergeChunks(parts []string) string {
	var words []string
	for _, p := range parts {
		next := strings.Fields(cleanChunk(p))
		if len(next) == 0 {
			continue
		}
		words = append(words, next[overlapLen(words, next):]...)
	}
	return strings.Join(words, " ")
}

// overlapLen is the longest k >= 2 such that the last k words of prev
// equal the first k words of next, ignoring case and punctuation.
func overlapLen(prev, next []string) int {
	limit := min(len(prev), len(next), maxOverlapWords)
	for k := limit; k >= 2; k-- {
		if sameWords(prev[len(prev)-k:], next[:k]) {
			return k
		}
	}
	return 0
}

func sameWords(a, b []string) bool {
	for i := range a {
		if normWord(a[i]) != normWord(b[i]) {
			return false
		}
	}
	return true
}

func normWord(w string) string {
	return strings.ToLower(strings.TrimFunc(w, func(r rune) bool {
		return unicode.IsPunct(r)
	}))
}
