package offchain

import (
	"context"
	"sync"

	"anagolay/internal/verification/models"
)

// MemoryIndex keeps envelopes in process memory.
type MemoryIndex struct {
	mu      sync.Mutex
	entries map[string][]models.IndexingData
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string][]models.IndexingData)}
}

func (m *MemoryIndex) Append(_ context.Context, key []byte, data models.IndexingData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[string(key)] = append(m.entries[string(key)], data.Clone())
	return nil
}

func (m *MemoryIndex) Take(_ context.Context, key []byte) ([]models.IndexingData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.entries[string(key)]
	delete(m.entries, string(key))
	return out, nil
}

// Len returns the number of envelopes stored under key.
func (m *MemoryIndex) Len(key []byte) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries[string(key)])
}
