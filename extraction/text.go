package extraction

import (
	"strings"
	"unicode"

	"github.com/poiesic/memvault/core"
)

const (
	partSeparator   = "\n\n---\n\n"
	maxPartChars    = 500_000
	maxTextChars    = 1_000_000
	fallbackChars   = 500
	maxTags         = 8
	truncatedMarker = "\n\n[Truncated...]"
)

// capChars returns the first n characters of s.
func capChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// truncate caps s at n characters and marks the cut.
func truncate(s string, n int) string {
	capped := capChars(s, n)
	if len(capped) == len(s) {
		return s
	}
	return capped + truncatedMarker
}

func fallbackSummary(text string) string {
	capped := capChars(text, fallbackChars)
	if len(capped) < len(text) {
		return capped + "..."
	}
	return capped
}

// normalizeTags lowercases and trims tags, joins words with '-', caps each
// at the tag name limit and keeps at most maxTags distinct tags.
func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	result := make([]string, 0, min(len(tags), maxTags))
	for _, tag := range tags {
		words := strings.FieldsFunc(strings.ToLower(tag), unicode.IsSpace)
		name := strings.Trim(capChars(strings.Join(words, "-"), core.MaxTagNameLength), "-")
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		result = append(result, name)
		if len(result) == maxTags {
			break
		}
	}
	return result
}
