package vault

import (
	"context"
	"sync"
)

// MemorySpace is process-local storage shared by every [MemoryBackend] opened on it.
// Writes through one handle are reported to watchers of the other handles.
type MemorySpace struct {
	mu       sync.Mutex
	values   map[string]string
	watchers map[*memoryWatch]struct{}
}

type memoryWatch struct {
	owner *MemoryBackend
	ch    chan Change
}

// NewMemorySpace returns an empty space.
func NewMemorySpace() *MemorySpace {
	return &MemorySpace{
		values:   make(map[string]string),
		watchers: make(map[*memoryWatch]struct{}),
	}
}

// Open returns a new handle on the space.
func (s *MemorySpace) Open() *MemoryBackend {
	return &MemoryBackend{space: s}
}

// MemoryBackend is one handle on a [MemorySpace].
type MemoryBackend struct {
	space *MemorySpace
}

// Load implements [Backend].
func (b *MemoryBackend) Load(_ context.Context, key string) (string, error) {
	b.space.mu.Lock()
	defer b.space.mu.Unlock()

	v, ok := b.space.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Save implements [Backend].
func (b *MemoryBackend) Save(_ context.Context, key, value string) error {
	b.space.mu.Lock()
	defer b.space.mu.Unlock()

	b.space.values[key] = value
	b.space.notifyLocked(b, Change{Key: key})
	return nil
}

// Delete implements [Backend].
func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.space.mu.Lock()
	defer b.space.mu.Unlock()

	if _, ok := b.space.values[key]; !ok {
		return nil
	}
	delete(b.space.values, key)
	b.space.notifyLocked(b, Change{Key: key, Deleted: true})
	return nil
}

// Watch implements [Watcher]. Changes made through this handle are not reported to it.
func (b *MemoryBackend) Watch(ctx context.Context) (<-chan Change, error) {
	w := &memoryWatch{owner: b, ch: make(chan Change, watchBuffer)}

	b.space.mu.Lock()
	b.space.watchers[w] = struct{}{}
	b.space.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.space.mu.Lock()
		delete(b.space.watchers, w)
		close(w.ch)
		b.space.mu.Unlock()
	}()

	return w.ch, nil
}

func (s *MemorySpace) notifyLocked(origin *MemoryBackend, c Change) {
	for w := range s.watchers {
		if w.owner == origin {
			continue
		}
		deliver(w.ch, c)
	}
}

// Put writes key as an outside writer would, notifying every handle. It is meant for
// tooling and tests that simulate another process tampering with storage.
func (s *MemorySpace) Put(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	s.notifyLocked(nil, Change{Key: key})
}
