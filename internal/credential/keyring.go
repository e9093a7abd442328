// Package credential stores mail account passwords in the system
// keyring, keyed by account email.
package credential

import (
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "portal-tracker"

// Vault holds mail account passwords. The zero value is not usable;
// construct one with Open or NewVault.
type Vault struct {
	ring keyring.Keyring
}

// Open connects to the system keyring, preferring the platform's
// native backend and falling back to an encrypted file under the
// config directory.
func Open() (*Vault, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/portal-tracker/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("portal-tracker-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Vault{ring: ring}, nil
}

// NewVault wraps an already-open keyring. Tests use it with an
// in-memory backend.
func NewVault(ring keyring.Keyring) *Vault {
	return &Vault{ring: ring}
}

// Password retrieves the stored password for the given account email.
func (v *Vault) Password(email string) (string, error) {
	item, err := v.ring.Get(email)
	if err != nil {
		return "", fmt.Errorf("getting password for %q: %w", email, err)
	}
	return string(item.Data), nil
}

// SetPassword stores the password for the given account email,
// replacing any previous value.
func (v *Vault) SetPassword(email, password string) error {
	err := v.ring.Set(keyring.Item{
		Key:   email,
		Label: serviceName + ": " + email,
		Data:  []byte(password),
	})
	if err != nil {
		return fmt.Errorf("storing password for %q: %w", email, err)
	}
	return nil
}

// DeletePassword removes the stored password for the given account
// email.
func (v *Vault) DeletePassword(email string) error {
	if err := v.ring.Remove(email); err != nil {
		return fmt.Errorf("deleting password for %q: %w", email, err)
	}
	return nil
}
