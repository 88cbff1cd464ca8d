package idp

import "errors"

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("idp: invalid email or password")
	// ErrUserExists is returned by Directory.Add for a taken email.
	ErrUserExists = errors.New("idp: user already exists")
	// ErrWeakPassword is returned for passwords outside the accepted length.
	ErrWeakPassword = errors.New("idp: password length out of range")
	// ErrRefreshInvalid is returned for unknown, malformed or expired refresh tokens.
	ErrRefreshInvalid = errors.New("idp: refresh token invalid")
	// ErrRefreshReused is returned when a superseded refresh token is presented. The family is
	// revoked.
	ErrRefreshReused = errors.New("idp: refresh token reused")
	// ErrStoreUnavailable wraps refresh family store failures.
	ErrStoreUnavailable = errors.New("idp: store unavailable")
)
