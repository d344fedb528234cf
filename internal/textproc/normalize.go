// Package textproc normalizes and analyzes extracted document text.
package textproc

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Normalize cleans extracted text: NUL bytes are removed, line endings become
// LF, whitespace runs inside a line collapse to one space, lines are trimmed,
// runs of blank lines collapse to one and the result is trimmed.
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\x00", "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := true // drops leading blank lines
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

// CountWords counts runs of characters that are neither space nor punctuation
func CountWords(text string) int {
	count := 0
	inWord := false

	for _, r := range text {
		if unicode.IsSpace(r) || unicode.IsPunct(r) {
			if inWord {
				count++
				inWord = false
			}
		} else {
			inWord = true
		}
	}

	// Count last word
	if inWord {
		count++
	}

	return count
}

// Preview returns the first maxChars bytes of text, broken at a word boundary when possible
func Preview(text string, maxChars int) string {
	if len(text) <= maxChars {
		return text
	}

	preview := text[:maxChars]
	for len(preview) > 0 && !utf8.ValidString(preview) {
		preview = preview[:len(preview)-1]
	}
	if lastSpace := strings.LastIndex(preview, " "); lastSpace > maxChars/2 {
		preview = preview[:lastSpace]
	}
	return preview + "..."
}
