package securekv

import (
	"context"
)

// Vault is platform-native secure storage (OS keychain, cloud secret
// manager). It is trusted to keep values confidential and access-controlled
// on its own, so the store hands it serialized values unencrypted.
//
// GetItem reports ok=false for a missing item. DeleteItem on a missing item
// returns nil.
type Vault interface {
	IsAvailable(ctx context.Context) bool
	SetItem(ctx context.Context, key, value string) error
	GetItem(ctx context.Context, key string) (value string, ok bool, err error)
	DeleteItem(ctx context.Context, key string) error
}

// PersistentMap is ordinary key/value persistence with no confidentiality of
// its own. The store only ever writes cipher tokens to it.
//
// GetItem reports ok=false for a missing item. RemoveItem on a missing item
// returns nil.
type PersistentMap interface {
	SetItem(ctx context.Context, key, value string) error
	GetItem(ctx context.Context, key string) (value string, ok bool, err error)
	RemoveItem(ctx context.Context, key string) error
}

// Cipher seals payloads into self-contained tokens and opens them again.
// The associated data is authenticated but not encrypted; Open fails if it
// differs from what was passed to Seal.
type Cipher interface {
	Seal(plaintext, associatedData []byte) (string, error)
	Open(token string, associatedData []byte) ([]byte, error)
}

// BackendKind names the storage route taken by an operation.
type BackendKind int

const (
	BackendNone BackendKind = iota
	BackendVault
	BackendEncryptedFallback
)

func (k BackendKind) String() string {
	switch k {
	case BackendVault:
		return "vault"
	case BackendEncryptedFallback:
		return "encrypted-fallback"
	default:
		return "none"
	}
}

// Backend is the common contract of the two storage routes. Payloads going
// in and out are the serialized (plaintext) form; whatever protection the
// route needs is applied inside.
type Backend interface {
	Kind() BackendKind
	SetItem(ctx context.Context, key, payload string) error
	GetItem(ctx context.Context, key string) (payload string, ok bool, err error)
	Contains(ctx context.Context, key string) (bool, error)
	DeleteItem(ctx context.Context, key string) error
}

// VaultBackend routes payloads straight to a Vault.
type VaultBackend struct {
	vault Vault
}

// NewVaultBackend wraps v as a Backend.
func NewVaultBackend(v Vault) *VaultBackend {
	return &VaultBackend{vault: v}
}

func (b *VaultBackend) Kind() BackendKind { return BackendVault }

func (b *VaultBackend) SetItem(ctx context.Context, key, payload string) error {
	return b.vault.SetItem(ctx, key, payload)
}

func (b *VaultBackend) GetItem(ctx context.Context, key string) (string, bool, error) {
	return b.vault.GetItem(ctx, key)
}

func (b *VaultBackend) Contains(ctx context.Context, key string) (bool, error) {
	_, ok, err := b.vault.GetItem(ctx, key)
	return ok, err
}

func (b *VaultBackend) DeleteItem(ctx context.Context, key string) error {
	return b.vault.DeleteItem(ctx, key)
}

// EncryptedBackend seals payloads with a Cipher before they reach the
// PersistentMap. The entry key is bound into each token as associated data.
type EncryptedBackend struct {
	store  PersistentMap
	cipher Cipher
}

// NewEncryptedBackend wraps m and c as a Backend.
func NewEncryptedBackend(m PersistentMap, c Cipher) *EncryptedBackend {
	return &EncryptedBackend{store: m, cipher: c}
}

func (b *EncryptedBackend) Kind() BackendKind { return BackendEncryptedFallback }

func (b *EncryptedBackend) SetItem(ctx context.Context, key, payload string) error {
	token, err := b.cipher.Seal([]byte(payload), []byte(key))
	if err != nil {
		return &cryptoFault{err: err}
	}
	return b.store.SetItem(ctx, key, token)
}

// GetItem returns a cryptoFault when the stored token can't be opened.
func (b *EncryptedBackend) GetItem(ctx context.Context, key string) (string, bool, error) {
	token, ok, err := b.store.GetItem(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}
	plaintext, err := b.cipher.Open(token, []byte(key))
	if err != nil {
		return "", false, &cryptoFault{err: err}
	}
	return string(plaintext), true, nil
}

func (b *EncryptedBackend) Contains(ctx context.Context, key string) (bool, error) {
	_, ok, err := b.store.GetItem(ctx, key)
	return ok, err
}

func (b *EncryptedBackend) DeleteItem(ctx context.Context, key string) error {
	return b.store.RemoveItem(ctx, key)
}

var (
	_ Backend = (*VaultBackend)(nil)
	_ Backend = (*EncryptedBackend)(nil)
)
