package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Cache for single-node deployments and tests.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

func (m *Memory) GetExam(_ context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[name]
	if !ok || time.Now().After(entry.expiresAt) {
		delete(m.entries, name)
		return nil, ErrMiss
	}
	return entry.data, nil
}

func (m *Memory) SetExam(_ context.Context, name string, data []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[name] = memoryEntry{data: data, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (m *Memory) InvalidateExam(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, name)
	return nil
}
