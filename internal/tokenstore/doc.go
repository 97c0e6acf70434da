// Package tokenstore holds the Dropbox refresh token and delivers refreshed
// access tokens to the Firebase Realtime Database.
//
// Refresh tokens are read from one of three TokenStore backends:
//   - Env: read-only environment variable (DROPBOX_REFRESH_TOKEN by default)
//   - File: local file with atomic writes and 0600 permissions
//   - Keyring: OS-native credential storage
//
// Dropbox normally keeps refresh tokens stable; if the token endpoint ever
// rotates one, it is written back to the store it came from. The env backend
// cannot persist rotated tokens.
//
// FirebaseStore writes values to a database path on behalf of a signed-in
// Firebase session.
package tokenstore
