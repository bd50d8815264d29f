package scoring

import (
	"strings"
	"unicode"
)

// normalize lowercases the combined title and body once per item.
func normalize(title, body string) string {
	return strings.ToLower(strings.TrimSpace(title + " " + body))
}

// firstMatch returns the first phrase contained in text. Phrases are
// compared case-insensitively; text must already be lowercase.
func firstMatch(text string, phrases []string) (string, bool) {
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if strings.Contains(text, p) {
			return p, true
		}
	}
	return "", false
}

func countMatches(text string, phrases []string) int {
	n := 0
	for _, p := range phrases {
		if _, ok := firstMatch(text, []string{p}); ok {
			n++
		}
	}
	return n
}

// tokens splits text into lowercase words of at least three letters.
func tokens(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(w)) < 3 {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
