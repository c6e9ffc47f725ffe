// Package store defines the collection abstraction shared by all persistence backends.
//
// A collection is a single ordered list of records persisted as one document. Backends only
// support reading the whole list and overwriting the whole list; Update runs a locked
// read-modify-write cycle on top of those two operations.
package store

import (
	"context"
	"errors"
)

// Sentinel errors reported by collection backends.
var (
	// ErrUnavailable is returned when the backing collection is missing or unreadable.
	ErrUnavailable = errors.New("store unavailable")
	// ErrCorrupt is returned when the persisted document cannot be parsed.
	ErrCorrupt = errors.New("store corrupt")
)

// Collection is a whole-document persistence unit for records of type T.
type Collection[T any] interface {
	// Load returns every record in stored order.
	Load(ctx context.Context) ([]T, error)
	// Save overwrites the collection with records.
	Save(ctx context.Context, records []T) error
	// Update loads the collection, passes it to fn and saves the result while holding the
	// collection's exclusive lock. If fn returns an error nothing is written.
	Update(ctx context.Context, fn func(records []T) ([]T, error)) error
	// Init creates an empty collection if none exists yet.
	Init(ctx context.Context) error
}
