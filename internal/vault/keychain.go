package vault

import (
	"context"
	"errors"
	"runtime"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/systmms/securekv/pkg/securekv"
)

// KeychainClient abstracts OS keychain operations for testing.
type KeychainClient interface {
	// Get retrieves a secret; a missing item yields ErrItemNotFound.
	Get(service, account string) (string, error)

	// Set creates or replaces a secret.
	Set(service, account, secret string) error

	// Delete removes a secret; a missing item yields ErrItemNotFound.
	Delete(service, account string) error

	// IsAvailable returns true if keychain is available on this platform
	IsAvailable() bool

	// IsHeadless returns true if running in headless environment
	IsHeadless() bool
}

// probeAccount is read, never written, when probing availability.
const probeAccount = "__securekv_probe__"

// KeychainOptions configures a Keychain vault.
type KeychainOptions struct {
	// Service groups the store's items; usually the namespace.
	Service string
	// Probe performs a read against the keychain in IsAvailable so a locked
	// or missing Secret Service is detected up front.
	Probe bool
	// AllowHeadless uses the keychain even over SSH or in CI.
	AllowHeadless bool
	// Client overrides the platform client, for tests.
	Client KeychainClient
}

// Keychain stores items in the macOS Keychain or Linux Secret Service.
type Keychain struct {
	service       string
	probe         bool
	allowHeadless bool
	client        KeychainClient
}

// NewKeychain creates a keychain vault.
func NewKeychain(opts KeychainOptions) (*Keychain, error) {
	service := strings.TrimSpace(opts.Service)
	if service == "" {
		return nil, errors.New("keychain service cannot be empty")
	}
	client := opts.Client
	if client == nil {
		client = newPlatformKeychainClient()
	}
	return &Keychain{
		service:       service,
		probe:         opts.Probe,
		allowHeadless: opts.AllowHeadless,
		client:        client,
	}, nil
}

// Platform returns the current platform (darwin, linux, or unsupported)
func (k *Keychain) Platform() string {
	return runtime.GOOS
}

// Service returns the keychain service items are stored under.
func (k *Keychain) Service() string {
	return k.service
}

// Validate explains why the keychain is not usable, or returns nil.
func (k *Keychain) Validate(ctx context.Context) error {
	if !k.client.IsAvailable() {
		return ErrUnsupportedPlatform
	}
	if k.client.IsHeadless() && !k.allowHeadless {
		return ErrHeadless
	}
	if k.probe {
		if _, err := k.client.Get(k.service, probeAccount); err != nil && !isKeychainNotFound(err) {
			return k.wrap("probe", probeAccount, err)
		}
	}
	return nil
}

func (k *Keychain) IsAvailable(ctx context.Context) bool {
	return k.Validate(ctx) == nil
}

func (k *Keychain) SetItem(_ context.Context, key, value string) error {
	if err := k.client.Set(k.service, key, value); err != nil {
		return k.wrap("set", key, err)
	}
	return nil
}

func (k *Keychain) GetItem(_ context.Context, key string) (string, bool, error) {
	value, err := k.client.Get(k.service, key)
	if err != nil {
		if isKeychainNotFound(err) {
			return "", false, nil
		}
		return "", false, k.wrap("get", key, err)
	}
	return value, true, nil
}

func (k *Keychain) DeleteItem(_ context.Context, key string) error {
	if err := k.client.Delete(k.service, key); err != nil && !isKeychainNotFound(err) {
		return k.wrap("delete", key, err)
	}
	return nil
}

func (k *Keychain) wrap(op, account string, err error) error {
	if isKeychainAccessDenied(err) {
		err = ErrAccessDenied
	}
	return &Error{Vault: "keychain", Op: op, Name: k.service + "/" + account, Err: err}
}

// keyringClient talks to the OS keychain through go-keyring. Availability
// checks are platform specific and live in the build-tagged files.
type keyringClient struct{}

func (keyringClient) Get(service, account string) (string, error) {
	secret, err := keyring.Get(service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrItemNotFound
	}
	return secret, err
}

func (keyringClient) Set(service, account, secret string) error {
	return keyring.Set(service, account, secret)
}

func (keyringClient) Delete(service, account string) error {
	err := keyring.Delete(service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrItemNotFound
	}
	return err
}

// isKeychainNotFound checks if an error indicates item not found
func isKeychainNotFound(err error) bool {
	if errors.Is(err, ErrItemNotFound) || errors.Is(err, keyring.ErrNotFound) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "not found") ||
		strings.Contains(errStr, "itemNotFound")
}

// isKeychainAccessDenied checks if an error indicates access was denied
func isKeychainAccessDenied(err error) bool {
	if errors.Is(err, ErrAccessDenied) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "access denied") ||
		strings.Contains(errStr, "accessDenied") ||
		strings.Contains(errStr, "user denied") ||
		strings.Contains(errStr, "canceled")
}

var _ securekv.Vault = (*Keychain)(nil)
