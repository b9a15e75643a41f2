// Package memory is an in-process store.KV with an optional byte budget.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/MrSnakeDoc/showcase/internal/store"
)

// KV keeps values in a map. The budget counts len(key)+len(value) of every entry;
// a write that would overflow it fails with store.ErrQuotaExceeded.
type KV struct {
	mu     sync.RWMutex
	data   map[string][]byte
	used   int64
	budget int64
}

// New returns an empty KV. budget <= 0 means unlimited.
func New(budget int64) *KV {
	return &KV{
		data:   make(map[string][]byte),
		budget: budget,
	}
}

func (m *KV) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return clone(v), true, nil
}

func (m *KV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setLocked(key, value)
}

// SetMany applies every entry or none of them.
func (m *KV) SetMany(_ context.Context, entries []store.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	after := m.used
	pending := make(map[string]int64, len(entries))
	for _, e := range entries {
		prev, ok := pending[e.Key]
		if !ok {
			prev = m.sizeLocked(e.Key)
		}
		size := int64(len(e.Key) + len(e.Value))
		after += size - prev
		pending[e.Key] = size
	}
	if m.budget > 0 && after > m.budget {
		return fmt.Errorf("failed to write %d keys (%d/%d bytes): %w", len(entries), after, m.budget, store.ErrQuotaExceeded)
	}

	for _, e := range entries {
		m.data[e.Key] = clone(e.Value)
	}
	m.used = after
	return nil
}

func (m *KV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.used -= m.sizeLocked(key)
	delete(m.data, key)
	return nil
}

func (m *KV) GetMany(_ context.Context, keys []string) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([][]byte, len(keys))
	for i, k := range keys {
		if v, ok := m.data[k]; ok {
			out[i] = clone(v)
		}
	}
	return out, nil
}

// Keys returns the keys starting with prefix, sorted.
func (m *KV) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Usage reports the bytes held against the budget.
func (m *KV) Usage(_ context.Context) (store.Usage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u := store.Usage{Used: uint64(m.used)}
	if m.budget > 0 {
		u.Quota = uint64(m.budget)
	}
	return u, nil
}

func (m *KV) Ping(_ context.Context) error { return nil }

func (m *KV) setLocked(key string, value []byte) error {
	size := int64(len(key) + len(value))
	after := m.used - m.sizeLocked(key) + size
	if m.budget > 0 && after > m.budget {
		return fmt.Errorf("failed to write %s (%d/%d bytes): %w", key, after, m.budget, store.ErrQuotaExceeded)
	}
	m.data[key] = clone(value)
	m.used = after
	return nil
}

func (m *KV) sizeLocked(key string) int64 {
	v, ok := m.data[key]
	if !ok {
		return 0
	}
	return int64(len(key) + len(v))
}

func clone(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
