package blob

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// ErrInjected is the default failure of a MemorySink set up to fail.
var ErrInjected = errors.New("injected blob failure")

// MemorySink keeps blobs in memory. It is meant for tests and can be told
// to fail stores or deletes.
type MemorySink struct {
	mu      sync.Mutex
	objects map[string][]byte
	stores  int

	// FailStoreAfter makes Store fail once this many stores have succeeded.
	// Negative disables the failure.
	FailStoreAfter int
	// StoreErr is returned by a failing Store. Defaults to ErrInjected.
	StoreErr error
	// DeleteErr, when set, is returned by every Delete.
	DeleteErr error
}

var _ Sink = (*MemorySink)(nil)

func NewMemorySink() *MemorySink {
	return &MemorySink{objects: make(map[string][]byte), FailStoreAfter: -1}
}

func (s *MemorySink) Store(ctx context.Context, data []byte, mimeType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailStoreAfter >= 0 && s.stores >= s.FailStoreAfter {
		if s.StoreErr != nil {
			return "", s.StoreErr
		}
		return "", ErrInjected
	}
	s.stores++
	url := "mem://" + uuid.NewString() + Extension(mimeType)
	s.objects[url] = slices.Clone(data)
	return url, nil
}

func (s *MemorySink) Fetch(ctx context.Context, url string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[url]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
	}
	return slices.Clone(data), nil
}

func (s *MemorySink) Delete(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	delete(s.objects, url)
	return nil
}

// Put stores data under a caller-chosen url.
func (s *MemorySink) Put(url string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[url] = slices.Clone(data)
}

// Len returns the number of stored objects.
func (s *MemorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// Has reports whether url is stored.
func (s *MemorySink) Has(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[url]
	return ok
}
