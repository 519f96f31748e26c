package vault

import (
	"errors"
	"fmt"
)

// Error wraps a vault client failure with the operation and item it was
// working on. Name is the vault-side item name, never the stored value.
type Error struct {
	Vault string // "keychain", "gcp-secretmanager", ...
	Op    string // "get", "set", "delete", "probe"
	Name  string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s error for %s: %v", e.Vault, e.Op, e.Name, e.Err)
	}
	return fmt.Sprintf("%s %s error for %s", e.Vault, e.Op, e.Name)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Sentinel errors
var (
	ErrItemNotFound        = errors.New("vault item not found")
	ErrAccessDenied        = errors.New("vault access denied")
	ErrUnsupportedPlatform = errors.New("keychain not supported on this platform")
	ErrHeadless            = errors.New("keychain requires GUI environment for authentication")
)
