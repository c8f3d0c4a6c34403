package objstore

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory object store implementing both Writer and
// Fetcher, for development and tests. FailPuts and FailFetches simulate
// outages.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte

	FailPuts    bool
	FailFetches bool
}

// NewMemoryStore creates an empty in-memory object store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Put stores a copy of the body under the key.
func (m *MemoryStore) Put(ctx context.Context, key string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailPuts {
		return fmt.Errorf("put %s: simulated object store outage", key)
	}
	buf := make([]byte, len(body))
	copy(buf, body)
	m.objects[key] = buf
	return nil
}

// Fetch returns a copy of the object, or ErrNotFound.
func (m *MemoryStore) Fetch(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailFetches {
		return nil, fmt.Errorf("fetch %s: simulated object store outage", key)
	}
	body, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	buf := make([]byte, len(body))
	copy(buf, body)
	return buf, nil
}

// Object returns the stored bytes for a key, for test assertions.
func (m *MemoryStore) Object(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	body, ok := m.objects[key]
	return body, ok
}
