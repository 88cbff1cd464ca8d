package rate

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultLimit is the number of hits allowed per window.
	DefaultLimit = 60
	// DefaultWindow is the window length.
	DefaultWindow = time.Minute
)

// Config holds limiter tuning parameters.
type Config struct {
	Limit  int
	Window time.Duration
}

// DefaultConfig returns 60 hits per minute.
func DefaultConfig() Config {
	return Config{Limit: DefaultLimit, Window: DefaultWindow}
}

// Validate checks that the window and limit are positive.
func (c Config) Validate() error {
	if c.Limit <= 0 {
		return errors.New("rate: limit must be > 0")
	}
	if c.Window <= 0 {
		return errors.New("rate: window must be > 0")
	}
	return nil
}

// Result describes one counted hit.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Counter records a hit for key inside a fixed window and reports the outcome.
type Counter interface {
	Hit(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

// Limiter applies one Config to a Counter.
type Limiter struct {
	counter Counter
	config  Config
}

// New creates a [Limiter]. A zero Config means DefaultConfig.
func New(counter Counter, cfg Config) (*Limiter, error) {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if counter == nil {
		return nil, errors.New("rate: counter is nil")
	}
	return &Limiter{counter: counter, config: cfg}, nil
}

// Allow counts a hit for key.
func (l *Limiter) Allow(ctx context.Context, key string) (Result, error) {
	return l.counter.Hit(ctx, key, l.config.Limit, l.config.Window)
}

// Check counts a hit for key and returns ErrRateLimited when it is denied.
func (l *Limiter) Check(ctx context.Context, key string) error {
	res, err := l.Allow(ctx, key)
	if err != nil {
		return err
	}
	if !res.Allowed {
		return fmt.Errorf("%w: retry after %s", ErrRateLimited, res.RetryAfter.Round(time.Second))
	}
	return nil
}

// LoginKey is the counter key for login attempts from ip.
func LoginKey(ip string) string {
	return "login:" + ip
}
