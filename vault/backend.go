package vault

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a [Backend] when a key holds no value.
var ErrNotFound = errors.New("vault: key not found")

// ErrBackendUnavailable wraps transport or filesystem failures reported by a backend.
var ErrBackendUnavailable = errors.New("vault: backend unavailable")

// ErrWatchUnsupported is returned when the configured backend cannot report changes.
var ErrWatchUnsupported = errors.New("vault: backend does not support change notification")

// ErrEmptySecret is returned by [NewStore] when no secret is configured.
var ErrEmptySecret = errors.New("vault: empty secret")

// Backend persists opaque text values.
type Backend interface {
	// Load returns the value stored under key, or [ErrNotFound].
	Load(ctx context.Context, key string) (string, error)
	// Save stores value under key.
	Save(ctx context.Context, key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Change describes a modification made to a key by another writer sharing the same storage.
type Change struct {
	Key     string
	Deleted bool
}

// Watcher is implemented by backends that can observe modifications made by other writers.
//
// The returned channel is closed once ctx is done. Delivery is lossy under pressure: when the
// channel is full a change is dropped, since a pending change already causes a re-read.
type Watcher interface {
	Watch(ctx context.Context) (<-chan Change, error)
}

const watchBuffer = 16

func deliver(ch chan<- Change, c Change) {
	select {
	case ch <- c:
	default:
	}
}
