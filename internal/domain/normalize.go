package domain

import (
	"strings"
)

// NormalizeText prepares a tag or category name for storage and comparison:
// surrounding whitespace is trimmed, the text is lowercased and inner runs
// of whitespace collapse into a single space.
func NormalizeText(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}
