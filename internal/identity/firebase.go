// Package identity signs in to Firebase Authentication and yields the session
// used to authorize writes against the Realtime Database.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/api/googleapi"
	identitytoolkit "google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"
)

// Session is an authenticated Firebase user session.
type Session struct {
	IDToken      string
	RefreshToken string
	Email        string
	UserID       string
	ExpiresAt    time.Time
}

// Credentials is the email/password pair used for sign-in.
type Credentials struct {
	Email    string
	Password string
}

// Option configures a Firebase authenticator.
type Option func(*firebaseConfig)

type firebaseConfig struct {
	endpoint   string
	appID      string
	httpClient *http.Client
}

// WithEndpoint overrides the identitytoolkit relyingparty base URL.
func WithEndpoint(endpoint string) Option {
	return func(c *firebaseConfig) {
		c.endpoint = endpoint
	}
}

// WithAppID sends the Firebase app id along with sign-in requests.
func WithAppID(appID string) Option {
	return func(c *firebaseConfig) {
		c.appID = appID
	}
}

// WithHTTPClient sets the HTTP client used for sign-in requests.
// The API key is still attached to every request.
func WithHTTPClient(client *http.Client) Option {
	return func(c *firebaseConfig) {
		c.httpClient = client
	}
}

// Firebase authenticates against Firebase Authentication with an email/password grant.
type Firebase struct {
	service     *identitytoolkit.Service
	credentials Credentials
	appID       string
	now         func() time.Time
}

// NewFirebase creates a Firebase authenticator for the given web API key.
// No I/O is performed until Authenticate is called.
func NewFirebase(ctx context.Context, apiKey string, creds Credentials, opts ...Option) (*Firebase, error) {
	if apiKey == "" {
		return nil, errors.New("firebase api key cannot be empty")
	}
	if creds.Email == "" || creds.Password == "" {
		return nil, errors.New("firebase email and password are required")
	}

	cfg := &firebaseConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	clientOpts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if cfg.endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.endpoint))
	}
	if cfg.httpClient != nil {
		// option.WithHTTPClient bypasses option.WithAPIKey, so the key is added by the transport
		clientOpts = []option.ClientOption{option.WithHTTPClient(&http.Client{
			Timeout:   cfg.httpClient.Timeout,
			Transport: &apiKeyTransport{key: apiKey, base: transportOrDefault(cfg.httpClient.Transport)},
		})}
		if cfg.endpoint != "" {
			clientOpts = append(clientOpts, option.WithEndpoint(cfg.endpoint))
		}
	}

	service, err := identitytoolkit.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating identitytoolkit service: %w", err)
	}

	return &Firebase{
		service:     service,
		credentials: creds,
		appID:       cfg.appID,
		now:         time.Now,
	}, nil
}

// Authenticate signs in with the configured credentials and returns the session.
func (f *Firebase) Authenticate(ctx context.Context) (Session, error) {
	call := f.service.Relyingparty.VerifyPassword(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPasswordRequest{
		Email:             f.credentials.Email,
		Password:          f.credentials.Password,
		ReturnSecureToken: true,
	}).Context(ctx)
	if f.appID != "" {
		call.Header().Set("X-Firebase-gmpid", f.appID)
	}

	resp, err := call.Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return Session{}, fmt.Errorf("firebase sign-in rejected (%d): %s", apiErr.Code, apiErr.Message)
		}
		return Session{}, err
	}
	if resp.IdToken == "" {
		return Session{}, errors.New("firebase sign-in returned no id token")
	}

	email := resp.Email
	if email == "" {
		email = f.credentials.Email
	}

	return Session{
		IDToken:      resp.IdToken,
		RefreshToken: resp.RefreshToken,
		Email:        email,
		UserID:       resp.LocalId,
		ExpiresAt:    f.now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}, nil
}

// apiKeyTransport appends the API key query parameter to outgoing requests.
type apiKeyTransport struct {
	key  string
	base http.RoundTripper
}

// Compile-time check that apiKeyTransport implements http.RoundTripper.
var _ http.RoundTripper = (*apiKeyTransport)(nil)

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	newReq := req.Clone(req.Context())
	q := newReq.URL.Query()
	q.Set("key", t.key)
	newReq.URL.RawQuery = q.Encode()
	return t.base.RoundTrip(newReq)
}

func transportOrDefault(rt http.RoundTripper) http.RoundTripper {
	if rt == nil {
		return http.DefaultTransport
	}
	return rt
}
