package vault

import (
	"context"
	"crypto/cipher"
	"encoding/json"
	"errors"
	"reflect"

	"go.uber.org/zap"
)

// Store encrypts JSON values before handing them to a [Backend].
//
// A nil *Store, or one built with a nil backend, behaves as storage that holds nothing.
type Store struct {
	backend Backend
	aead    cipher.AEAD
	logger  *zap.Logger
}

// Option configures a [Store].
type Option func(*Store)

// WithLogger sets the logger used to report discarded envelopes and backend failures.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore derives the encryption key from secret once and returns a store over backend.
// backend may be nil.
func NewStore(backend Backend, secret string, opts ...Option) (*Store, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	aead, err := deriveAEAD(secret)
	if err != nil {
		return nil, err
	}

	s := &Store{
		backend: backend,
		aead:    aead,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("vault")
	return s, nil
}

// Durable reports whether writes reach a backend.
func (s *Store) Durable() bool {
	return s != nil && s.backend != nil
}

// Set serializes value to JSON, seals it and stores it under key.
// Without a backend the write is skipped and Set returns nil.
func (s *Store) Set(ctx context.Context, key string, value any) error {
	if !s.Durable() {
		return nil
	}

	plaintext, err := json.Marshal(value)
	if err != nil {
		return err
	}
	sealed, err := seal(s.aead, key, plaintext)
	if err != nil {
		return err
	}
	return s.backend.Save(ctx, key, sealed)
}

// Remove deletes key. Without a backend it is a no-op.
func (s *Store) Remove(ctx context.Context, key string) error {
	if !s.Durable() {
		return nil
	}
	return s.backend.Delete(ctx, key)
}

// GetRaw returns the decrypted JSON stored under key, or false if it is absent or unreadable.
func (s *Store) GetRaw(ctx context.Context, key string) (json.RawMessage, bool) {
	if !s.Durable() {
		return nil, false
	}

	sealed, err := s.backend.Load(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("backend read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	plaintext, err := open(s.aead, key, sealed)
	if err != nil {
		s.logger.Debug("discarding unreadable envelope", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !json.Valid(plaintext) {
		s.logger.Debug("discarding envelope with invalid json", zap.String("key", key))
		return nil, false
	}
	return json.RawMessage(plaintext), true
}

// Get decodes the value stored under key into out, which must be a non-nil pointer.
// out is only assigned when the whole value decodes.
func (s *Store) Get(ctx context.Context, key string, out any) bool {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return false
	}

	raw, ok := s.GetRaw(ctx, key)
	if !ok {
		return false
	}

	fresh := reflect.New(rv.Elem().Type())
	if err := json.Unmarshal(raw, fresh.Interface()); err != nil {
		s.logger.Debug("discarding envelope with unexpected shape", zap.String("key", key), zap.Error(err))
		return false
	}
	rv.Elem().Set(fresh.Elem())
	return true
}

// Has reports whether the backend holds anything under key, readable or not.
func (s *Store) Has(ctx context.Context, key string) bool {
	if !s.Durable() {
		return false
	}
	_, err := s.backend.Load(ctx, key)
	return err == nil
}

// Get decodes the value stored under key into a fresh T. Anything unreadable yields
// the zero T and false; a partially decoded value is never returned.
func Get[T any](ctx context.Context, s *Store, key string) (T, bool) {
	var zero T

	raw, ok := s.GetRaw(ctx, key)
	if !ok {
		return zero, false
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		s.logger.Debug("discarding envelope with unexpected shape", zap.String("key", key), zap.Error(err))
		return zero, false
	}
	return out, true
}

// Watch forwards change notifications from the backend, if it supports them.
func (s *Store) Watch(ctx context.Context) (<-chan Change, error) {
	if !s.Durable() {
		return nil, ErrWatchUnsupported
	}
	w, ok := s.backend.(Watcher)
	if !ok {
		return nil, ErrWatchUnsupported
	}
	return w.Watch(ctx)
}
