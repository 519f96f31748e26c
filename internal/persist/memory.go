// Package persist provides the ordinary key/value maps the store falls back
// to when no vault is available. None of them encrypt anything; they only
// ever see cipher tokens.
package persist

import (
	"context"
	"sync"

	"github.com/systmms/securekv/pkg/securekv"
)

// Memory is a process-local map. Entries are lost on exit.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemory returns an empty Memory map.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) SetItem(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *Memory) GetItem(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) RemoveItem(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Snapshot copies the raw stored values, for inspection in tests and by the
// doctor command.
func (m *Memory) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out
}

var _ securekv.PersistentMap = (*Memory)(nil)
