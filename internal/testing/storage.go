package testing

import (
	"context"
	"sync"
)

// MemoryStorage is a map-backed key/value store.
type MemoryStorage struct {
	mu    sync.Mutex
	items map[string]string

	GetErr error
	SetErr error
}

// NewMemoryStorage creates a store seeded with items.
func NewMemoryStorage(items map[string]string) *MemoryStorage {
	m := &MemoryStorage{items: make(map[string]string, len(items))}
	for k, v := range items {
		m.items[k] = v
	}
	return m
}

func (m *MemoryStorage) GetItem(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return "", false, m.GetErr
	}
	v, ok := m.items[key]
	return v, ok, nil
}

func (m *MemoryStorage) SetItem(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return m.SetErr
	}
	m.items[key] = value
	return nil
}

func (m *MemoryStorage) RemoveItem(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

// Value returns the stored value for key, or "" when absent.
func (m *MemoryStorage) Value(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[key]
}
