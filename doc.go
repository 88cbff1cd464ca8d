// Package goSession manages the client side of an authenticated session built on a short-lived
// access token and a longer-lived refresh token: acquisition, silent renewal, encrypted
// persistence, and reconciliation between several processes sharing the same storage.
//
// A [Manager] is the single source of truth for session state. It is safe for concurrent use;
// every transition (status and session together) is applied atomically, and network and storage
// I/O run outside the state lock. Observers register with [Manager.Subscribe] and receive a
// [Snapshot] copy per transition, in transition order.
//
// A [Synchronizer] feeds external signals into a Manager: storage changes reported by the
// vault backend, explicit renewal/logout broadcasts from other instances, and same-process
// "unauthorized" notifications (for example after an API call answered 401).
//
// # Trust boundary
//
// Access token claims are decoded without signature verification (see package token). The
// identity and roles in a [SessionUser] are suitable for routing and presentation decisions
// only. Any security-sensitive authorization must be re-validated by the backend that issued
// the token.
//
// # Architecture boundaries
//
// goSession is the public surface: [Manager], [Builder], [Config], [Synchronizer] and value
// types. Encryption and persistence live in package vault, token decoding in package token,
// transport of broadcasts in package broadcast, and route decisions in package guard.
//
// # What this package must NOT do
//
//   - Log or audit access tokens, refresh tokens or passwords.
//   - Hold the state lock across an exchange call, a storage call or a listener callback.
//   - Import guard or exchange (both import goSession).
package goSession
