package fakes

import (
	"context"
	"sync"

	"github.com/systmms/securekv/pkg/securekv"
)

// FakeVault is a manual fake implementation of the securekv.Vault interface.
//
// It stores items in memory, can be switched between available and
// unavailable at any time, and can be configured to fail specific keys.
//
// Example usage:
//
//	vault := fakes.NewFakeVault().
//	    WithItem("session", "kv1:s:token").
//	    WithError("broken", errors.New("connection reset"))
//
//	vault.SetAvailable(false) // the store now selects its fallback
type FakeVault struct {
	mu        sync.RWMutex
	available bool
	items     map[string]string
	failOn    map[string]error
	callCount map[string]int
}

// NewFakeVault creates an available, empty FakeVault.
func NewFakeVault() *FakeVault {
	return &FakeVault{
		available: true,
		items:     make(map[string]string),
		failOn:    make(map[string]error),
		callCount: make(map[string]int),
	}
}

// WithItem stores a raw item as if written earlier.
func (f *FakeVault) WithItem(key, value string) *FakeVault {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[key] = value
	return f
}

// WithError makes every operation on key fail with err.
func (f *FakeVault) WithError(key string, err error) *FakeVault {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn[key] = err
	return f
}

// SetAvailable toggles what IsAvailable reports.
func (f *FakeVault) SetAvailable(available bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.available = available
}

// Items returns a copy of the raw stored items.
func (f *FakeVault) Items() map[string]string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]string, len(f.items))
	for k, v := range f.items {
		out[k] = v
	}
	return out
}

// CallCount returns how many times method was invoked.
func (f *FakeVault) CallCount(method string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.callCount[method]
}

func (f *FakeVault) IsAvailable(_ context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callCount["IsAvailable"]++
	return f.available
}

func (f *FakeVault) SetItem(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callCount["SetItem"]++
	if err := f.failOn[key]; err != nil {
		return err
	}
	f.items[key] = value
	return nil
}

func (f *FakeVault) GetItem(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callCount["GetItem"]++
	if err := f.failOn[key]; err != nil {
		return "", false, err
	}
	v, ok := f.items[key]
	return v, ok, nil
}

func (f *FakeVault) DeleteItem(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callCount["DeleteItem"]++
	if err := f.failOn[key]; err != nil {
		return err
	}
	delete(f.items, key)
	return nil
}

var _ securekv.Vault = (*FakeVault)(nil)

// FakePersistentMap is an in-memory securekv.PersistentMap whose raw
// contents tests can inspect and corrupt.
type FakePersistentMap struct {
	mu     sync.RWMutex
	items  map[string]string
	failOn map[string]error
}

// NewFakePersistentMap creates an empty FakePersistentMap.
func NewFakePersistentMap() *FakePersistentMap {
	return &FakePersistentMap{
		items:  make(map[string]string),
		failOn: make(map[string]error),
	}
}

// WithError makes every operation on key fail with err.
func (f *FakePersistentMap) WithError(key string, err error) *FakePersistentMap {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn[key] = err
	return f
}

// Raw returns the stored token for key.
func (f *FakePersistentMap) Raw(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.items[key]
	return v, ok
}

// Tamper replaces the stored token for key.
func (f *FakePersistentMap) Tamper(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[key] = value
}

// Len returns the number of stored entries.
func (f *FakePersistentMap) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.items)
}

func (f *FakePersistentMap) SetItem(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn[key]; err != nil {
		return err
	}
	f.items[key] = value
	return nil
}

func (f *FakePersistentMap) GetItem(_ context.Context, key string) (string, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if err := f.failOn[key]; err != nil {
		return "", false, err
	}
	v, ok := f.items[key]
	return v, ok, nil
}

func (f *FakePersistentMap) RemoveItem(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn[key]; err != nil {
		return err
	}
	delete(f.items, key)
	return nil
}

var _ securekv.PersistentMap = (*FakePersistentMap)(nil)
