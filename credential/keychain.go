package credential

import "github.com/zalando/go-keyring"

// Keyring is the platform secret store: macOS Keychain, the Secret Service
// on Linux, or the Windows credential manager.
type Keyring struct{}

// Get returns the secret stored under service and account.
func (Keyring) Get(service, account string) (string, error) {
	return keyring.Get(service, account)
}
