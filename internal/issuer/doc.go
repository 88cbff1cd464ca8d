// Package issuer signs and verifies the access tokens handed out by the demo identity backend.
//
// Tokens carry sub, email, name, roles, iat and exp. The session manager never verifies them;
// it only decodes claims for scheduling and routing. Verification happens here, on the
// serving side, for endpoints such as /auth/me.
//
// # What this package must NOT do
//
//   - Issue or track refresh tokens (see internal/idp).
//   - Be imported outside the goSession module.
package issuer
