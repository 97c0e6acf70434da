package tokensource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/florianilch/dropbox-token-relay/internal/tokenstore"
)

// ExchangerOption configures an Exchanger.
type ExchangerOption func(*exchangerConfig)

// exchangerConfig holds configuration for NewExchanger.
type exchangerConfig struct {
	endpoint   oauth2.Endpoint
	httpClient *http.Client
}

// WithEndpoint overrides the token endpoint (defaults to Endpoint).
func WithEndpoint(endpoint oauth2.Endpoint) ExchangerOption {
	return func(c *exchangerConfig) {
		c.endpoint = endpoint
	}
}

// WithHTTPClient sets the HTTP client for token requests.
// If not provided, a client with a 30 second timeout is used.
func WithHTTPClient(client *http.Client) ExchangerOption {
	return func(c *exchangerConfig) {
		c.httpClient = client
	}
}

// Exchanger trades the stored refresh token for a new access token.
// Refresh tokens rotated by the provider are written back to the store.
type Exchanger struct {
	config     *oauth2.Config
	store      tokenstore.TokenStore
	httpClient *http.Client

	writeMu sync.Mutex
}

// NewExchanger creates an Exchanger. No I/O is performed until ExchangeToken.
func NewExchanger(clientID, clientSecret string, store tokenstore.TokenStore, opts ...ExchangerOption) (*Exchanger, error) {
	if clientID == "" {
		return nil, errors.New("missing client id")
	}
	if store == nil {
		return nil, errors.New("missing refresh token store")
	}

	cfg := &exchangerConfig{
		endpoint: Endpoint,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Exchanger{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     cfg.endpoint,
		},
		store:      store,
		httpClient: cfg.httpClient,
	}, nil
}

// ExchangeToken performs one refresh_token grant and returns the access token.
func (e *Exchanger) ExchangeToken(ctx context.Context) (string, error) {
	refreshToken, err := e.store.Read(ctx)
	if err != nil {
		return "", fmt.Errorf("reading refresh token: %w", err)
	}

	// oauth2 picks up the HTTP client from the context
	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)

	// A token without access token is never valid, so Token() always hits the endpoint
	token, err := e.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	if token.AccessToken == "" {
		return "", ErrRefreshFailed
	}

	if token.RefreshToken != "" && token.RefreshToken != refreshToken {
		e.persistRefreshToken(ctx, token.RefreshToken)
	}

	return token.AccessToken, nil
}

// persistRefreshToken writes a rotated refresh token back to the store.
// The access token is still usable when this fails, so failures are only logged.
func (e *Exchanger) persistRefreshToken(ctx context.Context, refreshToken string) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	err := e.store.Write(ctx, refreshToken)
	switch {
	case err == nil:
		slog.InfoContext(ctx, "persisted rotated refresh token")
	case errors.Is(err, tokenstore.ErrReadOnly):
		slog.WarnContext(ctx, "refresh token rotated but store is read-only, update it manually", "error", err)
	default:
		slog.ErrorContext(ctx, "failed to persist rotated refresh token", "error", err)
	}
}
