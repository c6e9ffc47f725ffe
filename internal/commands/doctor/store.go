package doctor

import (
	"context"
	"fmt"

	"github.com/hay-kot/postbox/internal/core/pubsub"
	"github.com/hay-kot/postbox/internal/core/store"
)

// StoreCheck verifies that every collection can be read and reports duplicate names,
// which are tolerated but make lookups resolve to the first match only.
type StoreCheck struct {
	cols pubsub.Collections
}

// NewStoreCheck creates a new collection readability check.
func NewStoreCheck(cols pubsub.Collections) *StoreCheck {
	return &StoreCheck{cols: cols}
}

func (c *StoreCheck) Name() string {
	return "Collections"
}

func (c *StoreCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	if topics, ok := load(ctx, &result, "topics", c.cols.Topics); ok {
		names := make([]string, len(topics))
		for i, t := range topics {
			names[i] = t.Name
		}
		duplicates(&result, "topic names", names)
	}

	load(ctx, &result, "messages", c.cols.Messages)

	if users, ok := load(ctx, &result, "users", c.cols.Users); ok {
		names := make([]string, len(users))
		for i, u := range users {
			names[i] = u.Username
		}
		duplicates(&result, "usernames", names)
	}

	return result
}

func load[T any](ctx context.Context, result *Result, name string, col store.Collection[T]) ([]T, bool) {
	records, err := col.Load(ctx)
	if err != nil {
		result.fail(name, fmt.Sprintf("%s: %v", pubsub.Reason(err), err))
		return nil, false
	}

	result.pass(name, fmt.Sprintf("%d record(s)", len(records)))
	return records, true
}

func duplicates(result *Result, label string, values []string) {
	seen := make(map[string]int, len(values))
	var dups []string
	for _, v := range values {
		seen[v]++
		if seen[v] == 2 {
			dups = append(dups, v)
		}
	}

	if len(dups) > 0 {
		result.warn("Duplicate "+label, fmt.Sprintf("%v (only the first is used)", dups), false)
	}
}
