package basket

import (
	"context"
	"sync"
)

// Storage is the client-local key/value store a basket snapshot lives in. The scope
// isolates one browser session from another; the key carries the snapshot format version.
type Storage interface {
	Load(ctx context.Context, scope, key string) ([]byte, bool, error)
	Save(ctx context.Context, scope, key string, data []byte) error
}

// Pinger is implemented by storages backed by a remote service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// MemoryStorage keeps snapshots in process memory.
type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStorage returns an empty in-process storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: map[string][]byte{}}
}

func memoryKey(scope, key string) string {
	return scope + "\x00" + key
}

// Load returns a copy of the stored snapshot.
func (m *MemoryStorage) Load(_ context.Context, scope, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[memoryKey(scope, key)]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

// Save replaces the stored snapshot.
func (m *MemoryStorage) Save(_ context.Context, scope, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[memoryKey(scope, key)] = append([]byte(nil), data...)
	return nil
}
