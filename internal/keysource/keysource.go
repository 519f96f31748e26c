// Package keysource loads the symmetric key used by the encrypted fallback.
// Key material can come from an environment variable, a key file, a
// passphrase, or an item held in a vault. Keys are never read from the
// configuration file itself.
package keysource

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"

	"github.com/systmms/securekv/pkg/securekv"
)

// KeySize is the length of every key a Source returns.
const KeySize = 32

// argon2id parameters for passphrase keys.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 4
)

var (
	// ErrKeyNotSet is returned when the configured location holds no key.
	ErrKeyNotSet = errors.New("encryption key is not set")
	// ErrKeyFormat is returned when key material can't be decoded to KeySize bytes.
	ErrKeyFormat = errors.New("encryption key must be 32 bytes, base64 or hex encoded")
	// ErrInsecureKeyFile is returned for key files readable by group or others.
	ErrInsecureKeyFile = errors.New("key file is readable by group or others")
)

// Source produces the raw key. Callers own the returned slice and should
// zero it once the key has been moved into protected memory.
type Source interface {
	Key(ctx context.Context) ([]byte, error)
}

// Env reads an encoded key from an environment variable.
type Env struct {
	Name string
}

func (s Env) Key(ctx context.Context) ([]byte, error) {
	raw := os.Getenv(s.Name)
	if raw == "" {
		return nil, fmt.Errorf("%w: $%s is empty", ErrKeyNotSet, s.Name)
	}
	return DecodeKey(raw)
}

// File reads an encoded key from a file that only its owner may read.
type File struct {
	Path string
}

func (s File) Key(ctx context.Context) ([]byte, error) {
	info, err := os.Stat(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrKeyNotSet, s.Path)
		}
		return nil, fmt.Errorf("failed to stat key file: %w", err)
	}
	if info.Mode().Perm()&0o077 != 0 {
		return nil, fmt.Errorf("%w: %s has mode %04o, want 0600", ErrInsecureKeyFile, s.Path, info.Mode().Perm())
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	return DecodeKey(string(data))
}

// Passphrase stretches a passphrase from an environment variable with
// argon2id. The salt must stay fixed for the life of the store.
type Passphrase struct {
	Env  string
	Salt []byte
}

func (s Passphrase) Key(ctx context.Context) ([]byte, error) {
	pass := os.Getenv(s.Env)
	if pass == "" {
		return nil, fmt.Errorf("%w: $%s is empty", ErrKeyNotSet, s.Env)
	}
	if len(s.Salt) < 16 {
		return nil, errors.New("passphrase salt must be at least 16 bytes")
	}
	return argon2.IDKey([]byte(pass), s.Salt, argonTime, argonMemory, argonThreads, KeySize), nil
}

// VaultItem reads an encoded key stored as an item in a vault.
type VaultItem struct {
	Vault securekv.Vault
	Item  string
}

func (s VaultItem) Key(ctx context.Context) ([]byte, error) {
	if s.Vault == nil {
		return nil, errors.New("vault key source has no vault")
	}
	if !s.Vault.IsAvailable(ctx) {
		return nil, fmt.Errorf("vault holding key item %q is unavailable", s.Item)
	}
	raw, ok, err := s.Vault.GetItem(ctx, s.Item)
	if err != nil {
		return nil, fmt.Errorf("failed to read key item %q: %w", s.Item, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: vault item %q not found", ErrKeyNotSet, s.Item)
	}
	return DecodeKey(raw)
}

// Derived runs another source's key through Derive.
type Derived struct {
	Source    Source
	Namespace string
}

func (s Derived) Key(ctx context.Context) ([]byte, error) {
	master, err := s.Source.Key(ctx)
	if err != nil {
		return nil, err
	}
	defer wipe(master)
	return Derive(master, s.Namespace)
}

// Derive expands master key material into a namespace-specific key with
// HKDF-SHA256.
func Derive(master []byte, namespace string) ([]byte, error) {
	if len(master) == 0 {
		return nil, errors.New("master key is empty")
	}
	r := hkdf.New(sha256.New, master, nil, []byte("securekv/v1/"+namespace))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}

// Generate returns a fresh random key.
func Generate() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// Encode renders a key the way DecodeKey expects it (standard base64).
func Encode(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}

// DecodeKey accepts standard or URL-safe base64 (padded or not) or hex and
// requires exactly KeySize bytes.
func DecodeKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrKeyNotSet
	}

	if len(raw) == hex.EncodedLen(KeySize) {
		if key, err := hex.DecodeString(raw); err == nil {
			return key, nil
		}
	}
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding,
		base64.URLEncoding, base64.RawURLEncoding,
	} {
		key, err := enc.DecodeString(raw)
		if err == nil && len(key) == KeySize {
			return key, nil
		}
	}
	return nil, ErrKeyFormat
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
