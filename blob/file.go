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


package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FileSink stores blobs as files in a single directory. Keys are random
// UUIDs with an extension derived from the MIME type.
type FileSink struct {
	root    string
	baseURL string
}

var _ Sink = (*FileSink)(nil)

// NewFileSink creates root if needed. URLs are baseURL/<key>, or
// /files/<key> when baseURL is empty.
func NewFileSink(root, baseURL string) (*FileSink, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating blob root: %w", err)
	}
	if baseURL == "" {
		baseURL = "/files"
	}
	return &FileSink{root: abs, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Root returns the directory blobs are written to.
func (s *FileSink) Root() string {
	return s.root
}

// Store writes data to a new file and returns its URL.
func (s *FileSink) Store(ctx context.Context, data []byte, mimeType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := uuid.NewString() + Extension(mimeType)

	// Write to a temp name and rename so readers never see a partial file.
	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.root, key)); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return s.baseURL + "/" + key, nil
}

// Fetch reads the file behind url.
func (s *FileSink) Fetch(ctx context.Context, url string) ([]byte, error) {
	path, err := s.path(url)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
	}
	return data, err
}

// Delete removes the file behind url.
func (s *FileSink) Delete(ctx context.Context, url string) error {
	path, err := s.path(url)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// path maps a URL back to a file directly under root.
func (s *FileSink) path(url string) (string, error) {
	key, ok := strings.CutPrefix(url, s.baseURL+"/")
	if !ok || key == "" || key == "." || key == ".." ||
		strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, url)
	}
	path := filepath.Join(s.root, key)
	if filepath.Dir(path) != s.root {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, url)
	}
	return path, nil
}
