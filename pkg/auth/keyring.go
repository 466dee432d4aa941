package auth

import (
	"encoding/json"
	"fmt"

	"github.com/zalando/go-keyring"
)

const keyringService = "tootsync"

// TokenKeyring stores user tokens in the system keychain, keyed by instance
// hash. It backs the file cache; callers treat failures as soft.
type TokenKeyring struct{}

// NewTokenKeyring probes the system keychain and returns a keyring-backed
// token store, or an error when no keychain is available.
func NewTokenKeyring() (*TokenKeyring, error) {
	const probe = "availability_probe"
	if err := keyring.Set(keyringService, probe, "ok"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, probe)
	return &TokenKeyring{}, nil
}

// Save stores a token for the given instance hash.
func (k *TokenKeyring) Save(instanceHash string, token *Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := keyring.Set(keyringService, instanceHash, string(data)); err != nil {
		return fmt.Errorf("failed to store token in keyring: %w", err)
	}
	return nil
}

// Load retrieves the token for the given instance hash; nil when absent.
func (k *TokenKeyring) Load(instanceHash string) (*Token, error) {
	data, err := keyring.Get(keyringService, instanceHash)
	if err != nil {
		if err == keyring.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read token from keyring: %w", err)
	}

	var token Token
	if err := json.Unmarshal([]byte(data), &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	return &token, nil
}

// Delete removes the token for the given instance hash.
func (k *TokenKeyring) Delete(instanceHash string) error {
	if err := keyring.Delete(keyringService, instanceHash); err != nil && err != keyring.ErrNotFound {
		return fmt.Errorf("failed to delete token from keyring: %w", err)
	}
	return nil
}
