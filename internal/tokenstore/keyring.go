package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

// DefaultKeyringService is the keyring service the Dropbox refresh token is filed under.
// The keyring user defaults to the account running the service.
const DefaultKeyringService = "dboxrelay-refresh-token"

// KeyringStore keeps the Dropbox refresh token in the OS credential store.
// It suits operators running the relay on a workstation; headless servers
// usually lack a Secret Service and use FileStore instead.
type KeyringStore struct {
	service string
	user    string
}

// Compile-time check to ensure KeyringStore implements TokenStore
var _ TokenStore = (*KeyringStore)(nil)

func NewKeyringStore(service, user string) (*KeyringStore, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}
	if user == "" {
		return nil, fmt.Errorf("user cannot be empty")
	}

	return &KeyringStore{
		service: service,
		user:    user,
	}, nil
}

// Read returns the refresh token from the keyring.
func (k *KeyringStore) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	token, err := keyring.Get(k.service, k.user)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("no refresh token in keyring for service %s, user %s (seed it with `dboxrelay secrets set`)", k.service, k.user)
	}
	if err != nil {
		return "", err
	}

	if token == "" {
		return "", fmt.Errorf("empty refresh token in keyring for service %s, user %s", k.service, k.user)
	}

	return token, nil
}

// Write stores the refresh token, overwriting any existing entry.
func (k *KeyringStore) Write(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("refusing to write empty refresh token")
	}

	return keyring.Set(k.service, k.user, token)
}
