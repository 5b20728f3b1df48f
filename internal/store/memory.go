package store

import (
	"sort"
	"strings"
	"sync"
)

type memoryEntry struct {
	value     []byte
	expiresAt int64
}

// Memory is a map-backed Backend. It is the default for tests and for
// daemons that do not need persistence across restarts.
type Memory struct {
	mu   sync.RWMutex
	data map[string]memoryEntry
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]memoryEntry)}
}

func (m *Memory) Get(key string) ([]byte, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ent, ok := m.data[key]
	if !ok {
		return nil, 0, ErrNotFound
	}
	return append([]byte(nil), ent.value...), ent.expiresAt, nil
}

func (m *Memory) Put(key string, value []byte, expiresAt int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = memoryEntry{
		value:     append([]byte(nil), value...),
		expiresAt: expiresAt,
	}
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *Memory) Keys(prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) PurgeExpired(now int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var purged []string
	for k, ent := range m.data {
		if ent.expiresAt > 0 && now > ent.expiresAt {
			delete(m.data, k)
			purged = append(purged, k)
		}
	}
	sort.Strings(purged)
	return purged, nil
}

func (m *Memory) Close() error {
	return nil
}
