//go:build linux

package vault

import "os"

func newPlatformKeychainClient() KeychainClient {
	return linuxKeychainClient{}
}

// linuxKeychainClient uses the Secret Service over D-Bus (gnome-keyring,
// KWallet, ...).
type linuxKeychainClient struct {
	keyringClient
}

// IsAvailable returns true if a graphical session, and so usually a Secret
// Service, is present.
func (linuxKeychainClient) IsAvailable() bool {
	if os.Getenv("DBUS_SESSION_BUS_ADDRESS") != "" {
		return true
	}
	return os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != ""
}

// IsHeadless returns true if running in headless environment
func (linuxKeychainClient) IsHeadless() bool {
	// Check for SSH session
	if os.Getenv("SSH_TTY") != "" {
		return true
	}
	// Check for CI environments
	if os.Getenv("CI") != "" {
		return true
	}
	return os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == ""
}
