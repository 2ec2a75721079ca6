package credential

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/99designs/keyring"
)

const serviceName = "autohub"

// AccessTokenKey is the keyring key holding the backend access token.
const AccessTokenKey = "access-token"

// TokenEnv overrides the keyring when set.
const TokenEnv = "AUTOHUB_TOKEN"

// ErrNoToken is returned when no access token is stored.
var ErrNoToken = errors.New("no access token stored")

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/autohub/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("autohub-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Store reads and writes credentials in a keyring.
type Store struct {
	ring keyring.Keyring
}

// Open returns a Store backed by the system keyring.
func Open() (*Store, error) {
	ring, err := openKeyring()
	if err != nil {
		return nil, err
	}
	return &Store{ring: ring}, nil
}

// NewStore wraps an existing keyring, e.g. keyring.NewArrayKeyring in tests.
func NewStore(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

// Get retrieves a credential value by key.
func (s *Store) Get(key string) (string, error) {
	item, err := s.ring.Get(key)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores a credential value by key.
func (s *Store) Set(key string, value string) error {
	err := s.ring.Set(keyring.Item{
		Key:  key,
		Data: []byte(value),
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes a credential by key.
func (s *Store) Delete(key string) error {
	if err := s.ring.Remove(key); err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}

// TokenFactory returns the current access token. It is called on every
// request and on every push channel (re)connect so that a refreshed token
// is always picked up.
type TokenFactory func(ctx context.Context) (string, error)

// AccessToken is a TokenFactory that reads the token from the environment
// or, failing that, from the keyring on each call.
func (s *Store) AccessToken(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if token := os.Getenv(TokenEnv); token != "" {
		return token, nil
	}
	return s.Get(AccessTokenKey)
}
