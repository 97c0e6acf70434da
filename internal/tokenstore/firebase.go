package tokenstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/florianilch/dropbox-token-relay/internal/identity"
)

// DefaultTokenPath is the database path refreshed access tokens are written to.
const DefaultTokenPath = "server/dbox/token"

// FirebaseStore writes values into a Firebase Realtime Database over its REST API.
type FirebaseStore struct {
	databaseURL *url.URL
	httpClient  *http.Client
}

// NewFirebaseStore creates a FirebaseStore for the database at databaseURL
// (e.g. https://<project>-default-rtdb.firebaseio.com).
func NewFirebaseStore(databaseURL string, httpClient *http.Client) (*FirebaseStore, error) {
	u, err := url.Parse(strings.TrimSuffix(databaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid database URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid database URL %q: scheme and host required", databaseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &FirebaseStore{
		databaseURL: u,
		httpClient:  httpClient,
	}, nil
}

// WriteValue stores value at path, overwriting whatever was there.
// The write is authorized with the session's ID token.
func (s *FirebaseStore) WriteValue(ctx context.Context, session identity.Session, path, value string) error {
	if session.IDToken == "" {
		return errors.New("firebase database write requires a signed-in session")
	}

	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding value: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.endpoint(path, session.IDToken), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	return fmt.Errorf("firebase database write to %s rejected (%d): %s", path, resp.StatusCode, databaseError(resp.Body))
}

// endpoint builds {databaseURL}/{path}.json?auth={idToken}.
func (s *FirebaseStore) endpoint(path, idToken string) string {
	u := *s.databaseURL
	u.Path = u.Path + "/" + strings.Trim(path, "/") + ".json"
	u.RawQuery = url.Values{"auth": []string{idToken}}.Encode()
	return u.String()
}

// databaseError extracts the "error" field of a Realtime Database error body.
func databaseError(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return "unreadable response body"
	}

	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		return payload.Error
	}

	if text := strings.TrimSpace(string(raw)); text != "" {
		return text
	}
	return "empty response body"
}
