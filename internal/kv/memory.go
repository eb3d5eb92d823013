package kv

import (
	"sort"
	"sync"

	"github.com/roach88/offstore/internal/storage"
)

// Memory is an in-process Store. It is safe for concurrent use.
type Memory struct {
	mu    sync.Mutex
	items map[string]Item
	quota int64
	used  int64
}

// NewMemory creates an empty store. quotaBytes caps the summed length of
// keys and values; 0 means unlimited.
func NewMemory(quotaBytes int64) *Memory {
	return &Memory{
		items: make(map[string]Item),
		quota: quotaBytes,
	}
}

func (m *Memory) Get(key string) (Item, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[key]
	return item, ok, nil
}

func (m *Memory) Set(key, value string, rev int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.items[key]
	if (rev == 0 && ok) || (rev != 0 && (!ok || cur.Rev != rev)) {
		return 0, ErrConflict
	}

	delta := int64(len(key) + len(value))
	if ok {
		delta -= int64(len(key) + len(cur.Value))
	}
	if m.quota > 0 && m.used+delta > m.quota {
		return 0, storage.NewError(storage.KindQuotaExceeded, "set", key,
			"writing %d bytes exceeds quota of %d bytes", len(value), m.quota)
	}

	next := cur.Rev + 1
	m.items[key] = Item{Value: value, Rev: next}
	m.used += delta
	return next, nil
}

func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.items[key]; ok {
		m.used -= int64(len(key) + len(cur.Value))
		delete(m.items, key)
	}
	return nil
}

func (m *Memory) Keys() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Used returns the number of bytes currently counted against the quota.
func (m *Memory) Used() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used
}
