// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package openai

import "strings"

// repairJSON fixes the two defects small models most often emit: object keys
// missing their opening quote (`{tags": [...]}`) and trailing commas before a
// closing bracket. Text inside string literals is left untouched.
func repairJSON(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)

	runes := []rune(s)
	inString := false
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		if inString {
			b.WriteRune(ch)
			switch ch {
			case '\\':
				if i+1 < len(runes) {
					i++
					b.WriteRune(runes[i])
				}
			case '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
			b.WriteRune(ch)
		case ',':
			next := skipSpace(runes, i+1)
			if next < len(runes) && (runes[next] == '}' || runes[next] == ']') {
				continue
			}
			b.WriteRune(ch)
			i = copyBareKey(&b, runes, i+1) - 1
		case '{':
			b.WriteRune(ch)
			i = copyBareKey(&b, runes, i+1) - 1
		default:
			b.WriteRune(ch)
		}
	}
	return b.String()
}

// copyBareKey writes the whitespace after a '{' or ',' starting at i. When it
// is followed by a key written as `name":`, the missing opening quote is
// added and the key is copied. Returns the index of the next unread rune.
func copyBareKey(b *strings.Builder, runes []rune, i int) int {
	start := skipSpace(runes, i)
	b.WriteString(string(runes[i:start]))

	end := start
	for end < len(runes) && isKeyRune(runes[end]) {
		end++
	}
	if end == start || end+1 >= len(runes) || runes[end] != '"' || runes[end+1] != ':' {
		return start
	}
	b.WriteRune('"')
	b.WriteString(string(runes[start:end]))
	b.WriteString(`":`)
	return end + 2
}

func skipSpace(runes []rune, i int) int {
	for i < len(runes) && (runes[i] == ' ' || runes[i] == '\n' || runes[i] == '\t' || runes[i] == '\r') {
		i++
	}
	return i
}

func isKeyRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_'
}
