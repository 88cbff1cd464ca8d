package vault

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
)

const (
	fileSuffix    = ".vault"
	tempPrefix    = ".tmp-"
	defaultDirRel = "~/.gosession"
)

// DefaultDir returns the per-user directory used when no directory is configured.
func DefaultDir() (string, error) {
	return homedir.Expand(defaultDirRel)
}

// FileBackend stores each key as a file in a single directory.
// Writes go through a temporary file and a rename, so readers never see a partial value.
type FileBackend struct {
	dir    string
	logger *zap.Logger

	mu  sync.Mutex
	own map[string]ownWrite
}

// ownWrite is the last value this backend wrote for a key, or its deletion.
type ownWrite struct {
	value   string
	deleted bool
}

// NewFileBackend creates dir if needed. A leading "~" is expanded to the user's home.
func NewFileBackend(dir string, logger *zap.Logger) (*FileBackend, error) {
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(expanded, 0o700); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileBackend{
		dir:    expanded,
		logger: logger.Named("vault.file"),
		own:    make(map[string]ownWrite),
	}, nil
}

// Dir returns the directory holding the value files.
func (b *FileBackend) Dir() string {
	return b.dir
}

func (b *FileBackend) path(key string) string {
	return filepath.Join(b.dir, base64.RawURLEncoding.EncodeToString([]byte(key))+fileSuffix)
}

func keyFromName(name string) (string, bool) {
	base := filepath.Base(name)
	if strings.HasPrefix(base, tempPrefix) || !strings.HasSuffix(base, fileSuffix) {
		return "", false
	}
	key, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(base, fileSuffix))
	if err != nil {
		return "", false
	}
	return string(key), true
}

// Load implements [Backend].
func (b *FileBackend) Load(_ context.Context, key string) (string, error) {
	data, err := os.ReadFile(b.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return string(data), nil
}

// Save implements [Backend].
func (b *FileBackend) Save(_ context.Context, key, value string) error {
	tmp, err := os.CreateTemp(b.dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	b.remember(key, ownWrite{value: value})
	if err := os.Rename(tmpName, b.path(key)); err != nil {
		b.forget(key)
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Delete implements [Backend].
func (b *FileBackend) Delete(_ context.Context, key string) error {
	b.remember(key, ownWrite{deleted: true})
	err := os.Remove(b.path(key))
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}

func (b *FileBackend) remember(key string, w ownWrite) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.own == nil {
		b.own = make(map[string]ownWrite)
	}
	b.own[key] = w
}

func (b *FileBackend) forget(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.own, key)
}

// echo reports whether an event on key was caused by this backend. A removal is an echo when
// the last write through this backend was a delete. A create or write is an echo when the
// file holds the value this backend last saved, or is already gone again.
func (b *FileBackend) echo(key string, removed bool) bool {
	b.mu.Lock()
	last, ok := b.own[key]
	b.mu.Unlock()
	if !ok {
		return false
	}
	var echoed bool
	if removed {
		echoed = last.deleted
	} else {
		data, err := os.ReadFile(b.path(key))
		switch {
		case errors.Is(err, fs.ErrNotExist):
			echoed = last.deleted
		case err == nil:
			echoed = !last.deleted && string(data) == last.value
		}
	}
	if !echoed {
		// Another writer took over the key; its later events must not be matched against ours.
		b.mu.Lock()
		if b.own[key] == last {
			delete(b.own, key)
		}
		b.mu.Unlock()
	}
	return echoed
}

// Watch implements [Watcher] using fsnotify on the backend directory.
// Changes made through this backend are not reported to it; other backends on the same
// directory, in this process or another, see them.
func (b *FileBackend) Watch(ctx context.Context) (<-chan Change, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if err := w.Add(b.dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	out := make(chan Change, watchBuffer)
	go func() {
		defer close(out)
		defer w.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				key, ok := keyFromName(ev.Name)
				if !ok {
					continue
				}
				switch {
				case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
					if !b.echo(key, true) {
						deliver(out, Change{Key: key, Deleted: true})
					}
				case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
					if !b.echo(key, false) {
						deliver(out, Change{Key: key})
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				b.logger.Warn("watch error", zap.Error(err))
			}
		}
	}()
	return out, nil
}
