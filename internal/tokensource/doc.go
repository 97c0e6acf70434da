// Package tokensource exchanges the Dropbox refresh token for a fresh access
// token.
//
// Every ExchangeToken call performs a refresh_token grant against the token
// endpoint; tokens are never cached between calls, so each scheduled cycle
// hands out a token with the full lifetime:
//
//	ex, err := tokensource.NewExchanger(clientID, clientSecret, store)
//	accessToken, err := ex.ExchangeToken(ctx)
//
// # Custom Endpoint and HTTP Client
//
// Tests and proxies can redirect the token request:
//
//	ex, err := tokensource.NewExchanger(
//		clientID, clientSecret, store,
//		tokensource.WithEndpoint(oauth2.Endpoint{TokenURL: srv.URL, AuthStyle: oauth2.AuthStyleInParams}),
//		tokensource.WithHTTPClient(client),
//	)
package tokensource
