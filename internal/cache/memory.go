package cache

import (
	"bytes"
	"context"
	"sync"
	"time"
)

// MemoryProvider is an in-process Provider with per-key expiry. It backs the
// window lock when the cache is enabled without a Redis address.
type MemoryProvider struct {
	mu   sync.Mutex
	data map[string]item
	now  func() time.Time
}

type item struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryProvider creates an empty in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{data: make(map[string]item), now: time.Now}
}

// lookup returns a live entry, evicting it if expired. Caller holds mu.
func (m *MemoryProvider) lookup(key string) (item, bool) {
	it, ok := m.data[key]
	if !ok {
		return item{}, false
	}
	if !it.expiresAt.IsZero() && m.now().After(it.expiresAt) {
		delete(m.data, key)
		return item{}, false
	}
	return it, true
}

// SetNX stores value with an optional TTL when key is absent or expired.
func (m *MemoryProvider) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lookup(key); ok {
		return false, nil
	}
	var expires time.Time
	if ttl > 0 {
		expires = m.now().Add(ttl)
	}
	m.data[key] = item{value: append([]byte(nil), value...), expiresAt: expires}
	return true, nil
}

// DelIfMatch removes key while it still holds value.
func (m *MemoryProvider) DelIfMatch(_ context.Context, key string, value []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.lookup(key)
	if !ok || !bytes.Equal(it.value, value) {
		return false, nil
	}
	delete(m.data, key)
	return true, nil
}

// Close is a no-op.
func (m *MemoryProvider) Close() error { return nil }
