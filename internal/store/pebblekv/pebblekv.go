// Package pebblekv stores collections in an embedded Pebble database.
//
// Every collection is one key ("collection:<name>") whose value is the JSON encoded record
// list. This keeps the read-all/overwrite-all contract of the JSON file backend while
// sharing a single crash-safe database across collections.
package pebblekv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/rs/zerolog"

	"github.com/hay-kot/postbox/internal/core/store"
)

const keyPrefix = "collection:"

// DB wraps a Pebble database handle. Collection operations hold mu shared so
// Close waits for in-flight reads and writes.
type DB struct {
	mu  sync.RWMutex
	db  *pebble.DB
	log zerolog.Logger
}

// Open opens (or creates) a Pebble database at path.
func Open(path string, log zerolog.Logger) (*DB, error) {
	return open(path, &pebble.Options{}, log)
}

// OpenInMemory opens a database backed by an in-memory filesystem.
func OpenInMemory(log zerolog.Logger) (*DB, error) {
	return open("", &pebble.Options{FS: vfs.NewMem()}, log)
}

func open(path string, opts *pebble.Options, log zerolog.Logger) (*DB, error) {
	log.Debug().Str("path", path).Msg("opening pebble db")

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open pebble: %v", store.ErrUnavailable, err)
	}

	return &DB{db: db, log: log}, nil
}

// Close flushes and closes the database.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

// Collection implements store.Collection on top of a single Pebble key.
type Collection[T any] struct {
	db  *DB
	key []byte
	mu  sync.RWMutex
}

// NewCollection returns the collection stored under name.
func NewCollection[T any](db *DB, name string) *Collection[T] {
	return &Collection[T]{db: db, key: []byte(keyPrefix + name)}
}

// Load returns every record in the collection.
func (c *Collection[T]) Load(ctx context.Context) ([]T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.db.mu.RLock()
	defer c.db.mu.RUnlock()

	return c.load()
}

// Save overwrites the collection.
func (c *Collection[T]) Save(ctx context.Context, records []T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.db.mu.RLock()
	defer c.db.mu.RUnlock()

	return c.save(records)
}

// Update runs a read-modify-write cycle under the collection lock.
func (c *Collection[T]) Update(ctx context.Context, fn func([]T) ([]T, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.db.mu.RLock()
	defer c.db.mu.RUnlock()

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
}

// Init writes an empty collection if the key does not exist yet.
func (c *Collection[T]) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.db.mu.RLock()
	defer c.db.mu.RUnlock()

	if c.db.db == nil {
		return fmt.Errorf("%w: database closed", store.ErrUnavailable)
	}

	_, closer, err := c.db.db.Get(c.key)
	switch {
	case err == nil:
		return closer.Close()
	case errors.Is(err, pebble.ErrNotFound):
		return c.save(nil)
	default:
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
}

func (c *Collection[T]) load() ([]T, error) {
	if c.db.db == nil {
		return nil, fmt.Errorf("%w: database closed", store.ErrUnavailable)
	}

	value, closer, err := c.db.db.Get(c.key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s not initialized", store.ErrUnavailable, c.key)
		}
		return nil, fmt.Errorf("%w: get %s: %v", store.ErrUnavailable, c.key, err)
	}
	defer closer.Close() //nolint:errcheck

	var records []T
	if err := json.Unmarshal(value, &records); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", store.ErrCorrupt, c.key, err)
	}

	return records, nil
}

func (c *Collection[T]) save(records []T) error {
	if c.db.db == nil {
		return fmt.Errorf("%w: database closed", store.ErrUnavailable)
	}

	if records == nil {
		records = []T{}
	}

	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", c.key, err)
	}

	if err := c.db.db.Set(c.key, data, pebble.Sync); err != nil {
		c.db.log.Error().Err(err).Bytes("key", c.key).Msg("pebble set failed")
		return fmt.Errorf("%w: set %s: %v", store.ErrUnavailable, c.key, err)
	}

	return nil
}
