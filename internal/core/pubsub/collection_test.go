package pubsub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/hay-kot/postbox/internal/core/store"
)

// memCollection implements store.Collection in memory for testing. Records are round
// tripped through JSON so callers never share slices with the stored state.
type memCollection[T any] struct {
	mu      sync.Mutex
	data    []byte
	loadErr error
	saveErr error
	saves   int
}

func newMem[T any](records ...T) *memCollection[T] {
	c := &memCollection[T]{}
	_ = c.Save(context.Background(), records)
	c.saves = 0
	return c
}

func (c *memCollection[T]) Load(_ context.Context) ([]T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load()
}

func (c *memCollection[T]) load() ([]T, error) {
	if c.loadErr != nil {
		return nil, c.loadErr
	}
	if c.data == nil {
		return nil, store.ErrUnavailable
	}
	var records []T
	if err := json.Unmarshal(c.data, &records); err != nil {
		return nil, store.ErrCorrupt
	}
	return records, nil
}

func (c *memCollection[T]) Save(_ context.Context, records []T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.save(records)
}

func (c *memCollection[T]) save(records []T) error {
	if c.saveErr != nil {
		return c.saveErr
	}
	if records == nil {
		records = []T{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return err
	}
	c.data = data
	c.saves++
	return nil
}

func (c *memCollection[T]) Update(_ context.Context, fn func([]T) ([]T, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := c.load()
	if err != nil {
		return err
	}
	records, err = fn(records)
	if err != nil {
		return err
	}
	return c.save(records)
}

func (c *memCollection[T]) Init(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data != nil {
		return nil
	}
	return c.save(nil)
}

func (c *memCollection[T]) all() []T {
	records, _ := c.Load(context.Background())
	return records
}
