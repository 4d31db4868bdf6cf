package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// MemoryBlobStore backs the tests; it records object bytes and content
// types keyed by path.
type MemoryBlobStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	types   map[string]string
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

func (m *MemoryBlobStore) Put(_ context.Context, path string, r io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = data
	m.types[path] = contentType
	return nil
}

func (m *MemoryBlobStore) Remove(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, path)
	delete(m.types, path)
	return nil
}

func (m *MemoryBlobStore) RemovePrefix(_ context.Context, prefix string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for path := range m.objects {
		if strings.HasPrefix(path, prefix) {
			delete(m.objects, path)
			delete(m.types, path)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryBlobStore) PresignedGet(_ context.Context, path string, expiry time.Duration) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.objects[path]; !ok {
		return "", fmt.Errorf("object %q not found", path)
	}
	return fmt.Sprintf("memory://%s?expires_in=%s", path, expiry), nil
}

// Object returns the stored bytes for assertions in tests.
func (m *MemoryBlobStore) Object(path string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[path]
	return data, ok
}

// Len reports how many objects are stored.
func (m *MemoryBlobStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

var _ BlobStore = (*MemoryBlobStore)(nil)
