// Package memory keeps snapshot copies in-process, for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// BlobStore stores objects in a map keyed by path.
type BlobStore struct {
	mu      sync.RWMutex
	data    map[string][]byte
	uploads int
}

// NewBlobStore creates an empty store.
func NewBlobStore() *BlobStore {
	return &BlobStore{data: make(map[string][]byte)}
}

// PutObject stores the reader's content under path, replacing any previous
// object, and returns a memory:// URI.
func (s *BlobStore) PutObject(_ context.Context, path string, _ string, r io.Reader) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read object: %w", err)
	}
	s.mu.Lock()
	s.data[path] = body
	s.uploads++
	s.mu.Unlock()
	return "memory://" + path, nil
}

// Object returns a copy of the object at path.
func (s *BlobStore) Object(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	body, ok := s.data[path]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), body...), true
}

// Uploads counts successful PutObject calls.
func (s *BlobStore) Uploads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uploads
}
