package secure

import (
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

// ErrDestroyed is returned when a destroyed KeyBuffer is used.
var ErrDestroyed = errors.New("key buffer destroyed")

// KeyBuffer keeps symmetric key material encrypted in memory between uses.
// The plaintext key only exists inside a locked buffer for the duration of a
// WithKey callback.
type KeyBuffer struct {
	mu        sync.RWMutex
	enclave   *memguard.Enclave
	size      int
	destroyed bool
}

// NewKeyBuffer moves key into a memguard enclave. The caller's slice is
// wiped.
func NewKeyBuffer(key []byte) (*KeyBuffer, error) {
	if len(key) == 0 {
		return nil, errors.New("key material is empty")
	}
	size := len(key)
	// NewEnclave copies into protected memory and wipes the source.
	enclave := memguard.NewEnclave(key)
	if enclave == nil {
		return nil, errors.New("failed to create key enclave")
	}
	return &KeyBuffer{enclave: enclave, size: size}, nil
}

// Size returns the key length in bytes.
func (k *KeyBuffer) Size() int {
	return k.size
}

// WithKey decrypts the key into a locked buffer, passes it to fn and wipes it
// afterwards. fn must not retain the slice.
func (k *KeyBuffer) WithKey(fn func(key []byte) error) error {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.destroyed {
		return ErrDestroyed
	}

	locked, err := k.enclave.Open()
	if err != nil {
		return err
	}
	defer locked.Destroy()

	return fn(locked.Bytes())
}

// Destroy drops the enclave. It is idempotent.
func (k *KeyBuffer) Destroy() {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.destroyed {
		return
	}
	k.enclave = nil
	k.destroyed = true
}
