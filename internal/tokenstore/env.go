package tokenstore

import (
	"context"
	"fmt"
	"os"
)

// DefaultEnvKey is the variable existing deployments already set for the Dropbox refresh token.
const DefaultEnvKey = "DROPBOX_REFRESH_TOKEN"

// EnvStore reads the Dropbox refresh token from an environment variable.
// A token rotated by Dropbox cannot be written back; the exchanger keeps
// using the rotated token for the process lifetime and logs a warning.
type EnvStore struct {
	envKey string
	lookup func(string) (string, bool)
}

// Compile-time check to ensure EnvStore implements TokenStore
var _ TokenStore = (*EnvStore)(nil)

// NewEnvStore fails when the variable is not set, so a missing refresh token
// stops `start` instead of surfacing as a failed run three hours later.
func NewEnvStore(envKey string) (*EnvStore, error) {
	if envKey == "" {
		return nil, fmt.Errorf("environment key cannot be empty")
	}

	if _, exists := os.LookupEnv(envKey); !exists {
		return nil, fmt.Errorf("environment variable %s not set", envKey)
	}

	return &EnvStore{
		envKey: envKey,
		lookup: os.LookupEnv,
	}, nil
}

// Read returns the refresh token. An empty variable is an error.
func (e *EnvStore) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	token, _ := e.lookup(e.envKey)
	if token == "" {
		return "", fmt.Errorf("environment variable %s is empty, expected a Dropbox refresh token", e.envKey)
	}
	return token, nil
}

// Write always fails with ErrReadOnly. `secrets set` reports this as a hint
// to switch to file or keyring storage.
func (e *EnvStore) Write(ctx context.Context, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return fmt.Errorf("%w: environment variable %s", ErrReadOnly, e.envKey)
}
