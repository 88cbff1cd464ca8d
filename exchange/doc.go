// Package exchange implements goSession.Exchanger over HTTP+JSON.
//
// Backends disagree on key casing: the login endpoint answers access_token/refresh_token,
// the refresh endpoint accessToken/refreshToken. Both spellings are accepted for every field
// and normalized into a goSession.Grant here, so nothing past this package sees wire shapes.
//
// # Error mapping
//
//	401               → goSession.ErrInvalidCredentials
//	429               → goSession.ErrLoginRateLimited
//	other >= 400      → goSession.ErrExchangeRejected
//	transport failure → goSession.ErrExchangeUnavailable
//
// Status errors are returned as *APIError carrying the backend message; errors.Is matches the
// mapped sentinel.
//
// # What this package must NOT do
//
//   - Hold session state or retry requests.
//   - Log tokens or passwords.
package exchange
