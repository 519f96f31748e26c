package testutil

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/systmms/securekv/internal/keysource"
)

// TestKey returns a fixed 32-byte key filled with b. Each call returns a new
// slice, since ciphers wipe the key they are given.
func TestKey(b byte) []byte {
	return bytes.Repeat([]byte{b}, keysource.KeySize)
}

// WriteKeyFile writes key, base64 encoded, to a 0600 file in a temp dir and
// returns its path.
func WriteKeyFile(t *testing.T, key []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "store.key")
	require.NoError(t, os.WriteFile(path, []byte(keysource.Encode(key)), 0o600))
	return path
}

// StoreConfig describes a minimal securekv.yaml for tests.
type StoreConfig struct {
	Namespace string
	Vault     string // vault type, none when empty
	Fallback  string // fallback type, dir when empty
	DataDir   string
	KeyFile   string
}

// YAML renders the configuration document.
func (c StoreConfig) YAML() string {
	vault := c.Vault
	if vault == "" {
		vault = "none"
	}
	fallback := c.Fallback
	if fallback == "" {
		fallback = "dir"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "version: 1\nnamespace: %s\n", c.Namespace)
	fmt.Fprintf(&b, "vault:\n  type: %s\n", vault)
	fmt.Fprintf(&b, "fallback:\n  type: %s\n", fallback)
	if c.DataDir != "" {
		fmt.Fprintf(&b, "  path: %s\n", c.DataDir)
	}
	b.WriteString("encryption:\n  algorithm: aes-256-gcm\n")
	if c.KeyFile != "" {
		fmt.Fprintf(&b, "  key:\n    type: file\n    file: %s\n", c.KeyFile)
	}
	return b.String()
}

// WriteConfig writes cfg as securekv.yaml in a temp dir and returns its path.
func WriteConfig(t *testing.T, cfg StoreConfig) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "securekv.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg.YAML()), 0o600))
	return path
}
