package rate

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count int
	start time.Time
}

// MemoryCounter counts hits in process memory. It is safe for concurrent use.
type MemoryCounter struct {
	now func() time.Time

	mu      sync.Mutex
	windows map[string]*window
	hits    int
}

// NewMemoryCounter returns an empty counter. now may be nil.
func NewMemoryCounter(now func() time.Time) *MemoryCounter {
	if now == nil {
		now = time.Now
	}
	return &MemoryCounter{now: now, windows: make(map[string]*window)}
}

// Hit implements [Counter].
func (c *MemoryCounter) Hit(_ context.Context, key string, limit int, span time.Duration) (Result, error) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.hits++
	if c.hits%1024 == 0 {
		c.pruneLocked(now, span)
	}

	w, ok := c.windows[key]
	if !ok || now.Sub(w.start) > span {
		c.windows[key] = &window{count: 1, start: now}
		return Result{Allowed: true, Remaining: limit - 1}, nil
	}
	if w.count >= limit {
		return Result{Allowed: false, RetryAfter: w.start.Add(span).Sub(now)}, nil
	}
	w.count++
	return Result{Allowed: true, Remaining: limit - w.count}, nil
}

// Len returns the number of tracked keys.
func (c *MemoryCounter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.windows)
}

func (c *MemoryCounter) pruneLocked(now time.Time, span time.Duration) {
	for k, w := range c.windows {
		if now.Sub(w.start) > span {
			delete(c.windows, k)
		}
	}
}
