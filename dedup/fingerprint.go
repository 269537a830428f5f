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


// Package dedup computes content fingerprints and finds memories that
// already hold the same content.
package dedup

import (
	"encoding/hex"
	"net/url"
	"slices"
	"strings"

	"github.com/go-crypt/x/blake2b"
	"github.com/poiesic/memvault/core"
)

// Content is the normalizable payload of a submission.
type Content struct {
	Kind  core.MemoryType
	Text  string
	URL   string
	Files [][]byte
}

// Fingerprint returns the hex BLAKE2b-256 digest identifying content.
//
// Each part (text, URL, every file) is digested on its own after
// normalization, the part digests are sorted, and the final digest covers the
// memory kind plus the sorted list. Equal content therefore yields equal
// fingerprints regardless of file order.
func Fingerprint(content Content) string {
	var parts []string
	if text := NormalizeText(content.Text); text != "" {
		parts = append(parts, digest("text", []byte(text)))
	}
	if u := NormalizeURL(content.URL); u != "" {
		parts = append(parts, digest("url", []byte(u)))
	}
	for _, file := range content.Files {
		parts = append(parts, digest("file", file))
	}
	slices.Sort(parts)

	return digest(string(content.Kind), []byte(strings.Join(parts, "\n")))
}

func digest(label string, data []byte) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(label))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizeText unifies line endings and trims surrounding whitespace.
func NormalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.TrimSpace(text)
}

// NormalizeURL trims the URL, lowercases scheme and host and drops the
// fragment. Unparseable input is only trimmed.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}
