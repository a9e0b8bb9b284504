package credstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// Keyring is a Backend over the platform keystore (macOS Keychain,
// Windows Credential Manager, the freedesktop Secret Service on Linux).
// Each storage key becomes one keyring entry under a shared service name.
type Keyring struct {
	service string
}

// NewKeyring returns a keystore-backed Backend. service namespaces the
// entries so multiple installs do not clobber each other.
func NewKeyring(service string) *Keyring {
	return &Keyring{service: service}
}

// Available probes the keystore with a throwaway entry. Headless hosts
// and stripped-down containers typically have no secret service, in
// which case callers fall back to the on-disk backend.
func (k *Keyring) Available() bool {
	const probe = "availability-probe"

	if err := keyring.Set(k.service, probe, "ok"); err != nil {
		return false
	}
	_ = keyring.Delete(k.service, probe)
	return true
}

func (k *Keyring) Get(_ context.Context, key string) (string, error) {
	value, err := keyring.Get(k.service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("credstore: keyring get %q: %w", key, err)
	}
	return value, nil
}

func (k *Keyring) Set(_ context.Context, key, value string) error {
	if err := keyring.Set(k.service, key, value); err != nil {
		return fmt.Errorf("credstore: keyring set %q: %w", key, err)
	}
	return nil
}

func (k *Keyring) Delete(_ context.Context, key string) error {
	err := keyring.Delete(k.service, key)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("credstore: keyring delete %q: %w", key, err)
	}
	return nil
}
