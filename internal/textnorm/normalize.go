// Package textnorm canonicalizes recognized text before any pattern matching.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// CJK punctuation without a full-width compatibility mapping.
var punct = strings.NewReplacer(
	"。", ".",
	"、", ",",
	"【", "[",
	"】", "]",
	"〔", "(",
	"〕", ")",
	"〜", "~",
)

// Normalize folds full-width forms to half-width, maps CJK punctuation to
// ASCII and collapses whitespace. A whitespace run that contains a line break
// becomes "\n", any other run a single space. Leading and trailing whitespace
// is dropped. Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	s = width.Fold.String(s)
	s = punct.Replace(s)
	return collapseSpace(s)
}

// Join normalizes lines of recognized text as one document.
func Join(lines []string) string {
	return Normalize(strings.Join(lines, "\n"))
}

func collapseSpace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pending, lineBreak := false, false
	for _, r := range s {
		if unicode.IsSpace(r) {
			pending = true
			if isLineBreak(r) {
				lineBreak = true
			}
			continue
		}
		if pending && b.Len() > 0 {
			if lineBreak {
				b.WriteByte('\n')
			} else {
				b.WriteByte(' ')
			}
		}
		pending, lineBreak = false, false
		b.WriteRune(r)
	}
	return b.String()
}

func isLineBreak(r rune) bool {
	switch r {
	case '\n', '\r', '\f', '\v', '\u0085', '\u2028', '\u2029':
		return true
	}
	return false
}
