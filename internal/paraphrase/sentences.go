package paraphrase

import (
	"strings"
	"unicode/utf8"
)

const ellipsis = "..."

// splitSentences splits text into chunks, each holding one sentence plus its
// trailing whitespace, so that joining the chunks reproduces text exactly.
// A boundary is a run of ".", "!", "?" followed by whitespace or end of text;
// a dot followed by anything else (decimals, versions) does not split.
func splitSentences(text string) []string {
	var chunks []string
	start := 0
	i := 0
	for i < len(text) {
		c := text[i]
		if c != '.' && c != '!' && c != '?' {
			i++
			continue
		}
		j := i + 1
		for j < len(text) && (text[j] == '.' || text[j] == '!' || text[j] == '?') {
			j++
		}
		if j >= len(text) {
			chunks = append(chunks, text[start:])
			start = len(text)
			break
		}
		if !isSpaceByte(text[j]) {
			i = j
			continue
		}
		k := j
		for k < len(text) && isSpaceByte(text[k]) {
			k++
		}
		chunks = append(chunks, text[start:k])
		start = k
		i = k
	}
	if start < len(text) {
		chunks = append(chunks, text[start:])
	}
	return chunks
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// countSentences counts the non-empty sentence chunks in text.
func countSentences(text string) int {
	n := 0
	for _, c := range splitSentences(text) {
		if strings.TrimSpace(c) != "" {
			n++
		}
	}
	return n
}

// moveSecondToEnd rebuilds text with the second sentence moved to the end.
// Inter-sentence whitespace is normalized to single spaces.
func moveSecondToEnd(text string) string {
	var parts []string
	for _, c := range splitSentences(text) {
		if t := strings.TrimSpace(c); t != "" {
			parts = append(parts, t)
		}
	}
	if len(parts) < 3 {
		return text
	}
	out := make([]string, 0, len(parts))
	out = append(out, parts[0])
	out = append(out, parts[2:]...)
	out = append(out, parts[1])
	return strings.Join(out, " ")
}

// truncateAtBoundary bounds text to maxChars bytes, cutting at the last
// sentence boundary within the budget. When no boundary lands in the first
// 70% of the budget the text is hard-cut and an ellipsis appended, still
// within maxChars.
func truncateAtBoundary(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	cut := trimPartialRune(text[:maxChars])
	if first := strings.IndexAny(cut, ".!?"); first >= 0 && first < (maxChars*7)/10 {
		last := strings.LastIndexAny(cut, ".!?")
		return cut[:last+1]
	}
	if maxChars <= len(ellipsis) {
		return cut
	}
	return trimPartialRune(text[:maxChars-len(ellipsis)]) + ellipsis
}

// trimPartialRune drops trailing bytes left over from slicing a multi-byte
// rune in half.
func trimPartialRune(s string) string {
	for len(s) > 0 {
		r, size := utf8.DecodeLastRuneInString(s)
		if r != utf8.RuneError || size != 1 {
			return s
		}
		s = s[:len(s)-1]
	}
	return s
}
