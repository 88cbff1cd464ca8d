package rate

import "errors"

var (
	// ErrRateLimited is returned by Limiter.Check when the window budget is spent.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis command failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
