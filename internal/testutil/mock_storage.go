// mock_storage.go - In-memory storage implementation for testing
package testutil

import (
	"context"
	"sync"

	"github.com/tblumenau/voodoo-ss-extension/internal/storage"
)

// MemoryStore implements storage.Store in memory. Values go through the
// same encoding as the persistent store so decode behavior matches.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
	writes int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, key string, dst interface{}) (bool, error) {
	m.mu.RLock()
	raw, ok := m.values[key]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, storage.Decode(raw, dst)
}

func (m *MemoryStore) Set(_ context.Context, values map[string]interface{}) error {
	encoded := make(map[string][]byte, len(values))
	for k, v := range values {
		raw, err := storage.Encode(v)
		if err != nil {
			return err
		}
		encoded[k] = raw
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for k, raw := range encoded {
		m.values[k] = raw
	}
	m.writes++
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

// Has reports whether key is present.
func (m *MemoryStore) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.values[key]
	return ok
}

// WriteCount returns how many Set calls have completed.
func (m *MemoryStore) WriteCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}
