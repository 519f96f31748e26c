//go:build !darwin && !linux

package vault

func newPlatformKeychainClient() KeychainClient {
	return unsupportedKeychainClient{}
}

// unsupportedKeychainClient is a stub for unsupported platforms
type unsupportedKeychainClient struct{}

func (unsupportedKeychainClient) Get(string, string) (string, error) {
	return "", ErrUnsupportedPlatform
}

func (unsupportedKeychainClient) Set(string, string, string) error {
	return ErrUnsupportedPlatform
}

func (unsupportedKeychainClient) Delete(string, string) error {
	return ErrUnsupportedPlatform
}

func (unsupportedKeychainClient) IsAvailable() bool {
	return false
}

func (unsupportedKeychainClient) IsHeadless() bool {
	return false
}
