package header

import (
	"regexp"
	"strings"
)

// DefaultMaxNameLength caps synthesized names when no limit is configured.
const DefaultMaxNameLength = 100

var (
	illegalNameChars = regexp.MustCompile(`[\\/*?:"<>|]`)
	whitespaceRun    = regexp.MustCompile(`\s+`)
)

// SanitizeFileName turns a title cell into a file name stem: trimmed,
// filesystem-illegal characters removed, whitespace runs replaced by "_",
// capped at maxLen characters.
func SanitizeFileName(text string, maxLen int) string {
	t := strings.TrimSpace(text)
	t = illegalNameChars.ReplaceAllString(t, "")
	t = whitespaceRun.ReplaceAllString(t, "_")
	return truncate(t, maxLen)
}

// SanitizeTitle cleans a title for use in a readable file name: illegal
// characters become spaces, whitespace is collapsed, and the result is capped
// at maxLen characters.
func SanitizeTitle(text string, maxLen int) string {
	t := illegalNameChars.ReplaceAllString(text, " ")
	t = strings.TrimSpace(whitespaceRun.ReplaceAllString(t, " "))
	return truncate(t, maxLen)
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if n <= 0 {
		n = DefaultMaxNameLength
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
