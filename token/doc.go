// Package token decodes the payload of self-describing access tokens (JWT-shaped,
// header.payload.signature) and answers expiry questions about them.
//
// # Trust boundary
//
// Nothing in this package verifies a signature. Claims returned by [Decode] are read from an
// unverified envelope and are fit for routing and UX decisions only (which page to show, when to
// renew). Any security-sensitive authorization must be re-validated by the issuing backend.
//
// # What this package must NOT do
//
//   - Perform I/O or read the wall clock implicitly in the *At variants.
//   - Panic or return partial claims for malformed input.
//   - Import goSession or any other package of this module.
package token
