//go:build darwin

package vault

import "os"

func newPlatformKeychainClient() KeychainClient {
	return darwinKeychainClient{}
}

type darwinKeychainClient struct {
	keyringClient
}

// IsAvailable returns true since we're on macOS
func (darwinKeychainClient) IsAvailable() bool {
	return true
}

// IsHeadless returns true if running in headless environment
func (darwinKeychainClient) IsHeadless() bool {
	if os.Getenv("SSH_TTY") != "" {
		return true
	}
	return os.Getenv("CI") != ""
}
