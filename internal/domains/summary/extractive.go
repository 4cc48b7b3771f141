package summary

import (
	"regexp"
	"sort"
	"strings"
)

// sentence counts per summary tier for the local algorithm
var tierSentences = map[int]int{1: 1, 2: 2, 3: 3, 4: 5, 5: 7}

const defaultSentences = 3

// a sentence ends at . ! or ? followed by whitespace and a capital letter
var sentenceBreak = regexp.MustCompile(`([.!?])\s+([A-ZÅÄÖÜÉÈÁÀÂÍÌÎÓÒÔÚÙÛ])`)

// TargetSentences is the local sentence budget for tier. Unknown tiers get 3.
func TargetSentences(tier int) int {
	if n, ok := tierSentences[tier]; ok {
		return n
	}
	return defaultSentences
}

// SplitSentences breaks text into trimmed, non-empty sentences.
func SplitSentences(text string) []string {
	marked := sentenceBreak.ReplaceAllString(text, "$1\n$2")
	var out []string
	for _, s := range strings.Split(marked, "\n") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Extractive keeps the leading sentences plus the last one, in source order.
// Text with no more sentences than the tier allows comes back unchanged.
func Extractive(text string, tier int) string {
	if text == "" {
		return ""
	}
	target := TargetSentences(tier)
	sentences := SplitSentences(text)
	if len(sentences) <= target {
		return text
	}

	lead := min(target-1, len(sentences)-1)
	picked := make([]int, 0, target)
	for i := 0; i < lead; i++ {
		picked = append(picked, i)
	}
	if len(picked) < target && len(sentences) > len(picked) {
		picked = append(picked, len(sentences)-1)
	}
	sort.Ints(picked)

	parts := make([]string, len(picked))
	for i, idx := range picked {
		parts[i] = sentences[idx]
	}
	return strings.Join(parts, " ")
}
