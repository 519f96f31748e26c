// Package sealer turns plaintext payloads into self-contained authenticated
// cipher tokens and back.
//
// A token is the unpadded base64url encoding of
//
//	version (1 byte) | algorithm (1 byte) | nonce | ciphertext+tag
//
// The two header bytes are authenticated along with the caller's associated
// data, so neither can be altered without Open failing.
package sealer

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/systmms/securekv/internal/secure"
)

// KeySize is the key length required by every supported algorithm.
const KeySize = 32

const (
	tokenVersion byte = 1
	headerSize        = 2
)

// Sealer errors. None of them carry key bytes or plaintext.
var (
	ErrMalformedToken       = errors.New("malformed cipher token")
	ErrUnsupportedAlgorithm = errors.New("unsupported cipher algorithm")
	ErrOpen                 = errors.New("cipher token failed authentication")
	ErrKeySize              = fmt.Errorf("encryption key must be %d bytes", KeySize)
)

var encoding = base64.RawURLEncoding

// Algorithm identifies the AEAD construction recorded in a token header.
type Algorithm byte

const (
	AES256GCM         Algorithm = 1
	XChaCha20Poly1305 Algorithm = 2
)

func (a Algorithm) String() string {
	switch a {
	case AES256GCM:
		return "aes-256-gcm"
	case XChaCha20Poly1305:
		return "xchacha20-poly1305"
	default:
		return fmt.Sprintf("algorithm(%d)", byte(a))
	}
}

// ParseAlgorithm maps a configuration name to an Algorithm. The empty string
// selects AES-256-GCM.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "aes-256-gcm", "aes256gcm":
		return AES256GCM, nil
	case "xchacha20-poly1305", "xchacha20poly1305":
		return XChaCha20Poly1305, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, name)
	}
}

// Sealer implements securekv.Cipher with a single key held in protected
// memory. New tokens use the configured algorithm; Open accepts tokens of
// any supported algorithm made with the same key.
type Sealer struct {
	alg Algorithm
	key *secure.KeyBuffer
}

// New creates a Sealer. The key slice is wiped once it has been moved into
// protected memory.
func New(alg Algorithm, key []byte) (*Sealer, error) {
	if alg != AES256GCM && alg != XChaCha20Poly1305 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedAlgorithm, byte(alg))
	}
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	buf, err := secure.NewKeyBuffer(key)
	if err != nil {
		return nil, err
	}
	return &Sealer{alg: alg, key: buf}, nil
}

// Algorithm returns the algorithm used for new tokens.
func (s *Sealer) Algorithm() Algorithm {
	return s.alg
}

// Seal encrypts plaintext under a fresh random nonce.
func (s *Sealer) Seal(plaintext, associatedData []byte) (string, error) {
	header := []byte{tokenVersion, byte(s.alg)}

	var out []byte
	err := s.key.WithKey(func(key []byte) error {
		aead, err := newAEAD(s.alg, key)
		if err != nil {
			return err
		}
		prefix := headerSize + aead.NonceSize()
		buf := make([]byte, prefix, prefix+len(plaintext)+aead.Overhead())
		copy(buf, header)
		nonce := buf[headerSize:prefix]
		if _, err := rand.Read(nonce); err != nil {
			return fmt.Errorf("generate nonce: %w", err)
		}
		out = aead.Seal(buf, nonce, plaintext, additionalData(header, associatedData))
		return nil
	})
	if err != nil {
		return "", err
	}
	return encoding.EncodeToString(out), nil
}

// Open authenticates and decrypts a token produced by Seal.
func (s *Sealer) Open(token string, associatedData []byte) ([]byte, error) {
	raw, err := encoding.DecodeString(token)
	if err != nil {
		return nil, ErrMalformedToken
	}
	if len(raw) < headerSize {
		return nil, ErrMalformedToken
	}
	if raw[0] != tokenVersion {
		return nil, fmt.Errorf("%w: version %d", ErrMalformedToken, raw[0])
	}
	alg := Algorithm(raw[1])
	header := raw[:headerSize]

	var plaintext []byte
	err = s.key.WithKey(func(key []byte) error {
		aead, err := newAEAD(alg, key)
		if err != nil {
			return err
		}
		body := raw[headerSize:]
		if len(body) < aead.NonceSize()+aead.Overhead() {
			return ErrMalformedToken
		}
		nonce, ciphertext := body[:aead.NonceSize()], body[aead.NonceSize():]
		plaintext, err = aead.Open(nil, nonce, ciphertext, additionalData(header, associatedData))
		if err != nil {
			return ErrOpen
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

// Close wipes the key. Seal and Open fail afterwards.
func (s *Sealer) Close() error {
	s.key.Destroy()
	return nil
}

func newAEAD(alg Algorithm, key []byte) (cipher.AEAD, error) {
	switch alg {
	case AES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case XChaCha20Poly1305:
		return chacha20poly1305.NewX(key)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedAlgorithm, byte(alg))
	}
}

func additionalData(header, associatedData []byte) []byte {
	ad := make([]byte, 0, len(header)+len(associatedData))
	ad = append(ad, header...)
	return append(ad, associatedData...)
}
