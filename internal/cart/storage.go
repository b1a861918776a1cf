package cart

import (
	"context"
	"sync"
)

// Storage persists serialized cart snapshots under a string key.
type Storage interface {
	// Load returns the stored payload. found is false when nothing was stored under key.
	Load(ctx context.Context, key string) (payload string, found bool, err error)
	Save(ctx context.Context, key, payload string) error
	// Backend names the storage for logs and metrics.
	Backend() string
}

// MemoryStorage keeps snapshots in process memory.
type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string]string)}
}

func (m *MemoryStorage) Load(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	payload, ok := m.data[key]
	return payload, ok, nil
}

func (m *MemoryStorage) Save(_ context.Context, key, payload string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = payload
	return nil
}

func (m *MemoryStorage) Backend() string { return "memory" }
