package cache

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	value   []byte
	expires time.Time // zero = never
}

// MemoryStore is an in-process Store used when Redis is not configured and
// in tests.
type MemoryStore struct {
	mu    sync.Mutex
	kv    map[string]memEntry
	lists map[string][][]byte
	now   func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		kv:    make(map[string]memEntry),
		lists: make(map[string][][]byte),
		now:   time.Now,
	}
}

// WithClock replaces the store's clock. Used by tests to expire keys.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.now = now
	return m
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := memEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.kv[key] = e
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.kv[key]
	if !ok {
		return nil, ErrMiss
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.kv, key)
		return nil, ErrMiss
	}
	return append([]byte(nil), e.value...), nil
}

func (m *MemoryStore) Push(_ context.Context, key string, value []byte, maxLen int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := append([][]byte{append([]byte(nil), value...)}, m.lists[key]...)
	if maxLen > 0 && len(list) > maxLen {
		list = list[:maxLen]
	}
	m.lists[key] = list
	return nil
}

func (m *MemoryStore) Range(_ context.Context, key string) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.lists[key]
	out := make([][]byte, len(list))
	for i, v := range list {
		out[i] = append([]byte(nil), v...)
	}
	return out, nil
}

// Publish records nothing; in-process subscribers use the gateway hub.
func (m *MemoryStore) Publish(context.Context, string, []byte) error { return nil }
