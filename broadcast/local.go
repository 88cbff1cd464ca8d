package broadcast

import (
	"context"
	"sync"
)

// Local is an in-process bus.
type Local struct {
	mu     sync.Mutex
	subs   map[chan Message]struct{}
	closed bool
}

// NewLocal returns an empty in-process bus.
func NewLocal() *Local {
	return &Local{subs: make(map[chan Message]struct{})}
}

// Publish implements [Bus]. Messages to a full subscriber are dropped.
func (l *Local) Publish(_ context.Context, msg Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	for ch := range l.subs {
		offer(ch, msg)
	}
	return nil
}

// Subscribe implements [Bus].
func (l *Local) Subscribe(ctx context.Context) (<-chan Message, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	ch := make(chan Message, subscriberBuffer)
	l.subs[ch] = struct{}{}
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		defer l.mu.Unlock()
		if _, ok := l.subs[ch]; ok {
			delete(l.subs, ch)
			close(ch)
		}
	}()
	return ch, nil
}

// Close closes every subscription. Further calls fail with [ErrClosed].
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	for ch := range l.subs {
		delete(l.subs, ch)
		close(ch)
	}
	return nil
}
