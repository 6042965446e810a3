package session

import (
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is an in-process TokenStore. Entries honour their max age.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

var _ TokenStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *MemoryStore) Get(name string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[name]
	if !ok || e.value == "" {
		return "", false
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		return "", false
	}
	return e.value, true
}

// Set stores value. A non-positive maxAge keeps it until cleared.
func (m *MemoryStore) Set(name, value string, maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memoryEntry{value: value}
	if maxAge > 0 {
		e.expiresAt = m.now().Add(maxAge)
	}
	m.entries[name] = e
}

func (m *MemoryStore) Clear(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, name)
}
