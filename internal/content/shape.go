package content

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	hashtagOnlyLine = regexp.MustCompile(`^(#\w+\s*)+$`)
	segmentPrefix   = regexp.MustCompile(`^(\(\d+\)|\d+[.):]|\d+/\d*|[-•*])\s+`)
)

// Shape cleans generated text for posting: trims whitespace and wrapping
// quotes, drops hashtag-only lines and truncates to limit characters at a
// word boundary.
func Shape(s string, limit int) string {
	s = trimQuotes(strings.TrimSpace(s))

	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, l := range lines {
		t := strings.TrimSpace(l)
		if t != "" && hashtagOnlyLine.MatchString(t) {
			continue
		}
		kept = append(kept, strings.TrimRightFunc(l, unicode.IsSpace))
	}
	s = strings.TrimSpace(strings.Join(kept, "\n"))

	return Truncate(s, limit)
}

// Truncate cuts s to at most limit runes, backing up to the last whitespace
// when one exists in the kept part.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}

	runes := []rune(s)
	cut := runes[:limit]
	if !unicode.IsSpace(runes[limit]) {
		for i := len(cut) - 1; i > 0; i-- {
			if unicode.IsSpace(cut[i]) {
				cut = cut[:i]
				break
			}
		}
	}
	return strings.TrimRightFunc(string(cut), func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == ';' || r == ':'
	})
}

// SplitSegments turns a numbered or line-separated answer into thread
// segments, stripping list markers such as "1.", "2)" or "3/4".
func SplitSegments(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		line = segmentPrefix.ReplaceAllString(line, "")
		line = trimQuotes(strings.TrimSpace(line))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func trimQuotes(s string) string {
	for len(s) >= 2 {
		first, _ := utf8.DecodeRuneInString(s)
		last, _ := utf8.DecodeLastRuneInString(s)
		if !isQuote(first) || !isQuote(last) {
			break
		}
		s = strings.TrimSpace(s[utf8.RuneLen(first) : len(s)-utf8.RuneLen(last)])
	}
	return s
}

func isQuote(r rune) bool {
	switch r {
	case '"', '\'', '“', '”', '‘', '’', '«', '»':
		return true
	}
	return false
}
