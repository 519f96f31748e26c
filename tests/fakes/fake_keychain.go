package fakes

import "sync"

// FakeKeychainClient is a test double for vault.KeychainClient
type FakeKeychainClient struct {
	mu sync.Mutex

	// Secrets is a map of service -> account -> value
	Secrets map[string]map[string]string

	// Available controls whether the keychain reports as available
	Available bool

	// Headless controls whether the environment is reported as headless
	Headless bool

	// GetErr is returned by Get() if set (overrides Secrets lookup)
	GetErr error

	// SetErr is returned by Set() if set
	SetErr error
}

// NewFakeKeychainClient creates a new fake keychain client with defaults
func NewFakeKeychainClient() *FakeKeychainClient {
	return &FakeKeychainClient{
		Secrets:   make(map[string]map[string]string),
		Available: true,
		Headless:  false,
	}
}

// SetSecret adds a secret to the fake keychain
func (f *FakeKeychainClient) SetSecret(service, account, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setLocked(service, account, value)
}

func (f *FakeKeychainClient) setLocked(service, account, value string) {
	if f.Secrets == nil {
		f.Secrets = make(map[string]map[string]string)
	}
	if f.Secrets[service] == nil {
		f.Secrets[service] = make(map[string]string)
	}
	f.Secrets[service][account] = value
}

// Get retrieves a secret from the fake keychain
func (f *FakeKeychainClient) Get(service, account string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.GetErr != nil {
		return "", f.GetErr
	}
	if accounts, ok := f.Secrets[service]; ok {
		if value, ok := accounts[account]; ok {
			return value, nil
		}
	}
	return "", ErrFakeKeychainItemNotFound
}

// Set stores a secret in the fake keychain
func (f *FakeKeychainClient) Set(service, account, secret string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.SetErr != nil {
		return f.SetErr
	}
	f.setLocked(service, account, secret)
	return nil
}

// Delete removes a secret from the fake keychain
func (f *FakeKeychainClient) Delete(service, account string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if accounts, ok := f.Secrets[service]; ok {
		if _, ok := accounts[account]; ok {
			delete(accounts, account)
			return nil
		}
	}
	return ErrFakeKeychainItemNotFound
}

// IsAvailable returns whether keychain is available
func (f *FakeKeychainClient) IsAvailable() bool {
	return f.Available
}

// IsHeadless returns whether running in headless environment
func (f *FakeKeychainClient) IsHeadless() bool {
	return f.Headless
}

// ErrFakeKeychainItemNotFound is returned when a keychain item doesn't exist
var ErrFakeKeychainItemNotFound = &fakeKeychainError{code: "itemNotFound"}

// ErrFakeKeychainAccessDenied is returned when keychain access is denied
var ErrFakeKeychainAccessDenied = &fakeKeychainError{code: "accessDenied"}

type fakeKeychainError struct {
	code string
}

func (e *fakeKeychainError) Error() string {
	switch e.code {
	case "itemNotFound":
		return "keychain item not found"
	case "accessDenied":
		return "keychain access denied"
	default:
		return "keychain error: " + e.code
	}
}
