// Package jsonfile provides JSON file backed collections.
//
// Each collection lives in its own file holding a single top-level key that maps to the
// ordered record list, e.g. {"topics": [...]}.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/hay-kot/postbox/internal/core/store"
)

// Collection implements store.Collection using a JSON file for persistence.
type Collection[T any] struct {
	path string
	key  string
	mu   sync.RWMutex
}

// New creates a collection stored at path under the given top-level key.
func New[T any](path, key string) *Collection[T] {
	return &Collection[T]{path: path, key: key}
}

// Path returns the file backing the collection.
func (c *Collection[T]) Path() string {
	return c.path
}

func (c *Collection[T]) lockPath() string {
	return c.path + ".lock"
}

// withSharedLock executes fn while holding a shared (read) file lock.
// Multiple processes can hold shared locks simultaneously.
func (c *Collection[T]) withSharedLock(fn func() error) error {
	return c.withFileLock(syscall.LOCK_SH, fn)
}

// withExclusiveLock executes fn while holding an exclusive (write) file lock.
func (c *Collection[T]) withExclusiveLock(fn func() error) error {
	return c.withFileLock(syscall.LOCK_EX, fn)
}

func (c *Collection[T]) withFileLock(lockType int, fn func() error) error {
	dir := filepath.Dir(c.path)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("%w: %s: %v", store.ErrUnavailable, dir, err)
	}

	f, err := os.OpenFile(c.lockPath(), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open lock file: %v", store.ErrUnavailable, err)
	}
	defer f.Close() //nolint:errcheck

	if err := syscall.Flock(int(f.Fd()), lockType); err != nil {
		return fmt.Errorf("acquire file lock: %w", err)
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN) //nolint:errcheck

	return fn()
}

// Load returns every record in the collection.
func (c *Collection[T]) Load(ctx context.Context) ([]T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var records []T
	err := c.withSharedLock(func() error {
		var err error
		records, err = c.load()
		return err
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// Save overwrites the collection.
func (c *Collection[T]) Save(ctx context.Context, records []T) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.withExclusiveLock(func() error {
		return c.save(records)
	})
}

// Update runs a read-modify-write cycle under the exclusive lock.
func (c *Collection[T]) Update(ctx context.Context, fn func([]T) ([]T, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.withExclusiveLock(func() error {
		records, err := c.load()
		if err != nil {
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		records, err = fn(records)
		if err != nil {
			return err
		}

		return c.save(records)
	})
}

// Init writes an empty collection if the file does not exist yet.
func (c *Collection[T]) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	return c.withExclusiveLock(func() error {
		if _, err := os.Stat(c.path); err == nil {
			return nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
		}
		return c.save(nil)
	})
}

// load reads the collection file from disk. Caller must hold the lock.
func (c *Collection[T]) load() ([]T, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", store.ErrUnavailable, c.path, err)
	}

	return decode[T](data, c.key)
}

// save writes the collection file to disk atomically. Caller must hold the lock.
func (c *Collection[T]) save(records []T) error {
	data, err := encode(records, c.key)
	if err != nil {
		return err
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: write temp file: %v", store.ErrUnavailable, err)
	}

	if err := os.Rename(tmp, c.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: rename temp file: %v", store.ErrUnavailable, err)
	}

	return nil
}

// decode parses a collection document and extracts the record list under key.
func decode[T any](data []byte, key string) ([]T, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrCorrupt, err)
	}

	raw, ok := doc[key]
	if !ok {
		return nil, fmt.Errorf("%w: missing %q key", store.ErrCorrupt, key)
	}

	var records []T
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("%w: parse %q: %v", store.ErrCorrupt, key, err)
	}

	return records, nil
}

// encode renders records as a single-key collection document.
func encode[T any](records []T, key string) ([]byte, error) {
	if records == nil {
		records = []T{}
	}

	data, err := json.MarshalIndent(map[string][]T{key: records}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", key, err)
	}

	return data, nil
}
