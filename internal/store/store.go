// Package store abstracts the host platform's persisted key-value
// storage: string keys mapping to JSON-encoded blobs. The engine only
// ever reads the keys the host app writes.
package store

import "sync"

// Keys written by the hosting application and read by the engine.
const (
	KeyMapFavorites       = "mapFavorites"
	KeyPlaceNotifications = "placeNotifications"
)

// KV is the opaque blob store. Get returns a nil slice (and nil error)
// when the key is absent; absence is not an error because every
// consumer defaults to an empty container.
type KV interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
}

// Memory is an in-process KV used by tests and by hosts without
// persistent storage.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (m *Memory) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	m.data[key] = stored
	return nil
}
