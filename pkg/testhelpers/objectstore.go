package testhelpers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/reportai-inc/reportai-engine/pkg/apperrors"
	"github.com/reportai-inc/reportai-engine/pkg/storage"
)

// MemObjectStore is an in-memory storage.ObjectStore for tests, with
// injectable failures for exercising best-effort cleanup paths.
type MemObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	// DeleteErr, when set, is returned by every Delete call.
	DeleteErr error
	// UploadErr, when set, is returned by every Upload call.
	UploadErr error
}

var _ storage.ObjectStore = (*MemObjectStore)(nil)

const memBucket = "test-bucket"

// NewMemObjectStore creates an empty in-memory object store.
func NewMemObjectStore() *MemObjectStore {
	return &MemObjectStore{objects: make(map[string][]byte)}
}

// Has reports whether an object exists under the key.
func (s *MemObjectStore) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

func (s *MemObjectStore) Upload(_ context.Context, key string, data []byte, _ string) (string, error) {
	if s.UploadErr != nil {
		return "", s.UploadErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
	return fmt.Sprintf("gs://%s/%s", memBucket, key), nil
}

func (s *MemObjectStore) Download(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *MemObjectStore) Delete(_ context.Context, key string) error {
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return apperrors.ErrNotFound
	}
	delete(s.objects, key)
	return nil
}

func (s *MemObjectStore) KeyFromURL(url string) (string, error) {
	prefix := fmt.Sprintf("gs://%s/", memBucket)
	if !strings.HasPrefix(url, prefix) {
		return "", errors.New("url not in test bucket")
	}
	return strings.TrimPrefix(url, prefix), nil
}

func (s *MemObjectStore) Close() error { return nil }
