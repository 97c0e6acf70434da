// Package refresh implements the Dropbox token refresh cycle.
//
// A cycle has four collaborators, each behind a narrow interface:
//
//	Authenticator   signs in to Firebase and yields a session
//	TokenExchanger  trades the Dropbox refresh token for an access token
//	ValueWriter     stores the access token at a database path for the session
//	Notifier        tells operators how the cycle went
//
// Refresh runs the first three steps and returns a Result; Report turns a
// Result into exactly one notification. Run does both and is what the
// scheduler invokes. Failures are never propagated to the caller: they are
// logged, recorded and reported.
package refresh
