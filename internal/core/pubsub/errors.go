package pubsub

import (
	"context"
	"errors"

	"github.com/hay-kot/postbox/internal/core/store"
)

// Sentinel errors for pubsub operations.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrNoFilter         = errors.New("a user or topic filter is required")
)

// Reason classifies err into a short label used for logs and metrics.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidOperation), errors.Is(err, ErrNoFilter):
		return "invalid"
	case errors.Is(err, store.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, store.ErrCorrupt):
		return "corrupt"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
