package classifier

import (
	"regexp"
	"strings"
)

var (
	// sentenceEnd matches terminal punctuation followed by whitespace.
	sentenceEnd = regexp.MustCompile(`[.!?]+\s+`)
	paragraphs  = regexp.MustCompile(`\n\s*\n`)
)

// Summarize returns the first n sentences of text with whitespace
// collapsed. Fragments shorter than three words (headings, list markers)
// are skipped when enough longer sentences exist.
func Summarize(text string, n int) string {
	if n <= 0 {
		return ""
	}

	var sentences []string
	for _, para := range paragraphs.Split(text, -1) {
		sentences = append(sentences, splitSentences(strings.Join(strings.Fields(para), " "))...)
	}

	out := make([]string, 0, n)
	for _, s := range sentences {
		if len(strings.Fields(s)) < 3 && len(sentences) > n {
			continue
		}
		out = append(out, s)
		if len(out) == n {
			break
		}
	}
	return strings.Join(out, " ")
}

func splitSentences(flat string) []string {
	if flat == "" {
		return nil
	}
	var out []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(flat, -1) {
		if s := strings.TrimSpace(flat[start:loc[1]]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(flat[start:]); s != "" {
		out = append(out, s)
	}
	return out
}
