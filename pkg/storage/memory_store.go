package storage

import (
	"context"
	"fmt"
	"io"
	"sync"
)

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryStore keeps objects in-process. Used for local runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	baseURL string
}

// NewMemoryStore initializes an empty object store serving URLs under baseURL.
func NewMemoryStore(baseURL string) *MemoryStore {
	if baseURL == "" {
		baseURL = "memory://objects"
	}
	return &MemoryStore{objects: make(map[string]memoryObject), baseURL: baseURL}
}

func (m *MemoryStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("put object: size mismatch: got %d, want %d", len(data), size)
	}
	m.mu.Lock()
	m.objects[key] = memoryObject{data: data, contentType: contentType}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("get object: %w", ErrObjectNotFound)
	}
	out := make([]byte, len(obj.data))
	copy(out, obj.data)
	return out, nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return fmt.Errorf("delete object: %w", ErrObjectNotFound)
	}
	delete(m.objects, key)
	return nil
}

func (m *MemoryStore) PublicURL(ctx context.Context, key string) (string, error) {
	return m.baseURL + "/" + escapeKey(key), nil
}

// Has reports whether key exists.
func (m *MemoryStore) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
