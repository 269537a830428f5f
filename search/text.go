package search

import (
	"strings"
	"unicode/utf8"
)

// Stop words dropped from keyword queries
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true,
}

const snippetRadius = 50

// tokenizeAndFilter splits text into words, lowercases, trims punctuation,
// removes stop words and drops repeats.
func tokenizeAndFilter(text string) []string {
	words := strings.Fields(text)
	filtered := make([]string, 0, len(words))
	seen := make(map[string]bool, len(words))

	for _, word := range words {
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:'\"-()[]{}"))
		if cleaned == "" || stopWords[cleaned] || seen[cleaned] {
			continue
		}
		seen[cleaned] = true
		filtered = append(filtered, cleaned)
	}

	return filtered
}

// matchTerms returns the terms contained in field, case-insensitively.
func matchTerms(field string, terms []string) []string {
	if field == "" {
		return nil
	}
	lower := strings.ToLower(field)
	var matched []string
	for _, term := range terms {
		if strings.Contains(lower, term) {
			matched = append(matched, term)
		}
	}
	return matched
}

// snippet returns the text around the first occurrence of term.
func snippet(text, term string) string {
	idx := strings.Index(strings.ToLower(text), term)
	if idx < 0 || len(strings.ToLower(text)) != len(text) {
		return clip(text, 2*snippetRadius)
	}
	start := max(0, idx-snippetRadius)
	end := min(len(text), idx+len(term)+snippetRadius)
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}
	return text[start:end]
}

func clip(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}
