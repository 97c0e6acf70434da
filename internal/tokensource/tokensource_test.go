package tokensource_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"golang.org/x/oauth2"

	"github.com/florianilch/dropbox-token-relay/internal/tokensource"
	"github.com/florianilch/dropbox-token-relay/internal/tokenstore"
)

// memoryStore is an in-memory TokenStore that records writes.
type memoryStore struct {
	mu       sync.Mutex
	token    string
	readErr  error
	writeErr error
	writes   []string
}

func (m *memoryStore) Read(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return "", m.readErr
	}
	return m.token, nil
}

func (m *memoryStore) Write(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, token)
	if m.writeErr != nil {
		return m.writeErr
	}
	m.token = token
	return nil
}

type tokenServer struct {
	*httptest.Server
	mu       sync.Mutex
	calls    int
	lastForm map[string]string
}

func newTokenServer(t *testing.T, status int, body string) *tokenServer {
	t.Helper()
	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		form := make(map[string]string, len(r.PostForm))
		for k, v := range r.PostForm {
			form[k] = v[0]
		}

		ts.mu.Lock()
		ts.calls++
		ts.lastForm = form
		ts.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newExchanger(t *testing.T, srv *tokenServer, store tokenstore.TokenStore) *tokensource.Exchanger {
	t.Helper()
	ex, err := tokensource.NewExchanger("client-id", "client-secret", store,
		tokensource.WithEndpoint(oauth2.Endpoint{TokenURL: srv.URL + "/oauth2/token", AuthStyle: oauth2.AuthStyleInParams}),
		tokensource.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("NewExchanger: %v", err)
	}
	return ex
}

func TestExchangeToken(t *testing.T) {
	srv := newTokenServer(t, http.StatusOK, `{"access_token":"abc123","token_type":"bearer","expires_in":14400}`)
	store := &memoryStore{token: "refresh-1"}

	got, err := newExchanger(t, srv, store).ExchangeToken(context.Background())
	if err != nil {
		t.Fatalf("ExchangeToken: %v", err)
	}
	if got != "abc123" {
		t.Errorf("access token = %q, want abc123", got)
	}

	want := map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": "refresh-1",
		"client_id":     "client-id",
		"client_secret": "client-secret",
	}
	for k, v := range want {
		if srv.lastForm[k] != v {
			t.Errorf("form[%s] = %q, want %q", k, srv.lastForm[k], v)
		}
	}
	if len(store.writes) != 0 {
		t.Errorf("unexpected refresh token writes: %v", store.writes)
	}
}

func TestExchangeTokenAlwaysHitsEndpoint(t *testing.T) {
	srv := newTokenServer(t, http.StatusOK, `{"access_token":"abc123","token_type":"bearer","expires_in":14400}`)
	ex := newExchanger(t, srv, &memoryStore{token: "refresh-1"})

	for range 3 {
		if _, err := ex.ExchangeToken(context.Background()); err != nil {
			t.Fatalf("ExchangeToken: %v", err)
		}
	}
	if srv.calls != 3 {
		t.Errorf("token endpoint calls = %d, want 3", srv.calls)
	}
}

func TestExchangeTokenMissingAccessToken(t *testing.T) {
	srv := newTokenServer(t, http.StatusOK, `{}`)

	_, err := newExchanger(t, srv, &memoryStore{token: "refresh-1"}).ExchangeToken(context.Background())
	if !errors.Is(err, tokensource.ErrRefreshFailed) {
		t.Fatalf("error = %v, want ErrRefreshFailed", err)
	}
	if !strings.Contains(err.Error(), "Failed to refresh Dropbox token") {
		t.Errorf("error %q lacks operator message", err)
	}
}

func TestExchangeTokenRejectedGrant(t *testing.T) {
	srv := newTokenServer(t, http.StatusBadRequest, `{"error":"invalid_grant","error_description":"refresh token is invalid or revoked"}`)

	_, err := newExchanger(t, srv, &memoryStore{token: "revoked"}).ExchangeToken(context.Background())
	if !errors.Is(err, tokensource.ErrRefreshFailed) {
		t.Fatalf("error = %v, want ErrRefreshFailed", err)
	}
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		t.Fatalf("error %v does not wrap *oauth2.RetrieveError", err)
	}
	if retrieveErr.ErrorCode != "invalid_grant" {
		t.Errorf("ErrorCode = %q, want invalid_grant", retrieveErr.ErrorCode)
	}
}

func TestExchangeTokenStoreReadFailure(t *testing.T) {
	srv := newTokenServer(t, http.StatusOK, `{"access_token":"abc123"}`)
	readErr := errors.New("keyring locked")

	_, err := newExchanger(t, srv, &memoryStore{readErr: readErr}).ExchangeToken(context.Background())
	if !errors.Is(err, readErr) {
		t.Fatalf("error = %v, want wrapped read error", err)
	}
	if srv.calls != 0 {
		t.Errorf("token endpoint called %d times after read failure", srv.calls)
	}
}

func TestExchangeTokenPersistsRotatedRefreshToken(t *testing.T) {
	tests := []struct {
		name      string
		writeErr  error
		wantToken string
	}{
		{name: "writable store", wantToken: "refresh-2"},
		{name: "read-only store", writeErr: tokenstore.ErrReadOnly, wantToken: "refresh-1"},
		{name: "failing store", writeErr: errors.New("disk full"), wantToken: "refresh-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTokenServer(t, http.StatusOK, `{"access_token":"abc123","refresh_token":"refresh-2"}`)
			store := &memoryStore{token: "refresh-1", writeErr: tt.writeErr}

			got, err := newExchanger(t, srv, store).ExchangeToken(context.Background())
			if err != nil {
				t.Fatalf("ExchangeToken: %v", err)
			}
			if got != "abc123" {
				t.Errorf("access token = %q, want abc123", got)
			}
			if len(store.writes) != 1 || store.writes[0] != "refresh-2" {
				t.Errorf("writes = %v, want [refresh-2]", store.writes)
			}
			if store.token != tt.wantToken {
				t.Errorf("stored token = %q, want %q", store.token, tt.wantToken)
			}
		})
	}
}

func TestNewExchangerValidation(t *testing.T) {
	if _, err := tokensource.NewExchanger("", "secret", &memoryStore{}); err == nil {
		t.Error("expected error for empty client id")
	}
	if _, err := tokensource.NewExchanger("id", "secret", nil); err == nil {
		t.Error("expected error for nil store")
	}
}
