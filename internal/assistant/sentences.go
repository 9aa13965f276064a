package assistant

import (
	"html/template"
	"strings"
)

// SplitSentences cuts text into sentences ending in '.', '!' or '?', or at a
// line break. Text after the last boundary becomes a final sentence so
// nothing is lost. Text without any boundary is returned whole.
func SplitSentences(text string) []string {
	var out []string
	start := 0
	for _, end := range append(sentenceEnds(text), len(text)) {
		if end <= start {
			continue
		}
		if s := strings.TrimSpace(text[start:end]); s != "" {
			out = append(out, s)
		}
		start = end
	}
	return out
}

// RevealSteps renders the growing prefixes of text that stop at sentence
// boundaries, so markdown structure such as lists survives every step. The
// last step is always the whole text.
func RevealSteps(text string) []template.HTML {
	var steps []template.HTML
	start := 0
	for _, end := range sentenceEnds(text) {
		if end <= start {
			continue
		}
		if strings.TrimSpace(text[start:end]) == "" {
			start = end
			continue
		}
		if strings.TrimSpace(text[end:]) == "" {
			break
		}
		steps = append(steps, Render(text[:end]))
		start = end
	}
	if full := Render(text); full != "" {
		steps = append(steps, full)
	}
	return steps
}

// sentenceEnds returns the byte offsets just past each sentence. A run of
// terminators only ends a sentence when followed by whitespace or the end of
// text, which keeps "Rp 50.000" and "3.5" whole. "1." opening a line is a
// list marker, not a sentence.
func sentenceEnds(text string) []int {
	var ends []int
	lineStart := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\n':
			ends = append(ends, i)
			lineStart = i + 1
		case '.', '!', '?':
			j := i
			for j+1 < len(text) && isTerminator(text[j+1]) {
				j++
			}
			if j+1 < len(text) && !isSpace(text[j+1]) {
				i = j
				continue
			}
			if text[i] == '.' && j == i && isListMarker(text[lineStart:i]) {
				continue
			}
			ends = append(ends, j+1)
			i = j
		}
	}
	return ends
}

func isTerminator(c byte) bool { return c == '.' || c == '!' || c == '?' }

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

func isListMarker(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
