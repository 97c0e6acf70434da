package tokensource

import (
	"errors"

	"golang.org/x/oauth2"
)

// Endpoint defines the Dropbox OAuth2 endpoints.
// Client credentials travel in the form body alongside the refresh token.
var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://www.dropbox.com/oauth2/authorize",
	TokenURL:  "https://api.dropboxapi.com/oauth2/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// ErrRefreshFailed wraps every failed refresh-token grant.
//
//nolint:staticcheck // text is relayed verbatim to operators
var ErrRefreshFailed = errors.New("Failed to refresh Dropbox token")
