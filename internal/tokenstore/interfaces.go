package tokenstore

import (
	"context"
	"errors"
)

// ErrReadOnly is returned by backends that cannot persist tokens.
var ErrReadOnly = errors.New("token store is read-only")

// TokenStore reads and writes the long-lived refresh token.
type TokenStore interface {
	// Read returns the stored refresh token. Returns error if it is missing or empty.
	Read(ctx context.Context) (string, error)

	// Write replaces the stored refresh token. Returns error if the backend is
	// read-only or the write fails.
	Write(ctx context.Context, token string) error
}
