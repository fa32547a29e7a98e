package utils

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	controlChars   = regexp.MustCompile(`[\x00-\x1f\x7f]`)
	repeatedJoiner = regexp.MustCompile(`[_\-]{2,}`)
)

// SanitizeString removes control characters
func SanitizeString(s string) string {
	return controlChars.ReplaceAllString(s, "")
}

// SanitizeFileName turns free text into a filename component. Letters and
// digits of any script are kept, separators collapse to a single underscore
// and the result is capped at maxRunes (0 means no cap).
func SanitizeFileName(s string, maxRunes int) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(SanitizeString(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.Is(unicode.Mn, r):
			b.WriteRune(r)
		case r == '-' || r == '.':
			b.WriteRune('-')
		default:
			b.WriteRune('_')
		}
	}

	out := repeatedJoiner.ReplaceAllStringFunc(b.String(), func(m string) string {
		if strings.Contains(m, "_") {
			return "_"
		}
		return "-"
	})
	out = strings.Trim(out, "_-")

	if maxRunes > 0 {
		if runes := []rune(out); len(runes) > maxRunes {
			out = strings.TrimRight(string(runes[:maxRunes]), "_-")
		}
	}
	return out
}
