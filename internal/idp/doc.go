// Package idp is a small identity backend speaking the wire format the session manager's
// HTTP exchange client expects. It serves the demo dashboard and the tests of the exchange
// package.
//
// # Endpoints
//
//	POST /auth/login        {email,password} → {access_token,refresh_token,token_type,expires_at,user}
//	POST /auth/refresh      {refreshToken}   → {accessToken,refreshToken}
//	POST /auth/logout       {refreshToken}   → 204
//	GET  /auth/me           Bearer token     → user
//	GET  /auth/check-email  ?email=          → {available}
//
// Login and refresh deliberately answer with different key casing; clients normalize.
//
// # Refresh tokens
//
// Refresh tokens are opaque: base64url(family id | secret). Only the SHA-256 of the secret is
// stored. Every refresh rotates the secret; presenting a superseded secret revokes the whole
// family (reuse detection).
//
// # What this package must NOT do
//
//   - Store plaintext passwords or refresh secrets.
//   - Log tokens or passwords.
//   - Be imported outside the goSession module.
package idp
