package goSession

import "errors"

var (
	// ErrInvalidCredentials is returned when the credential exchange rejects the email/password
	// pair, or when either is empty.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLoginRateLimited is returned when the backend throttles login attempts.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrLoginFailed wraps every error returned by [Manager.Login].
	ErrLoginFailed = errors.New("login failed")
	// ErrRefreshFailed wraps every error returned by [Manager.Refresh] that ended the session.
	ErrRefreshFailed = errors.New("refresh failed")
	// ErrRefreshSuperseded is returned when a refresh result arrived after the session it was
	// issued for had already been replaced or cleared. The result is discarded.
	ErrRefreshSuperseded = errors.New("refresh result superseded")
	// ErrTokenInvalid is returned when an exchange answered with an access token that cannot be
	// decoded.
	ErrTokenInvalid = errors.New("access token cannot be decoded")
	// ErrExchangeRejected is returned when the backend answered with an unexpected error status.
	ErrExchangeRejected = errors.New("exchange rejected")
	// ErrExchangeUnavailable is returned when the backend could not be reached.
	ErrExchangeUnavailable = errors.New("exchange unavailable")
	// ErrManagerClosed is returned by operations on a closed [Manager].
	ErrManagerClosed = errors.New("session manager closed")
	// ErrSynchronizerStarted is returned when [Synchronizer.Start] is called twice.
	ErrSynchronizerStarted = errors.New("synchronizer already started")
)
