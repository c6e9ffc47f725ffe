package doctor

import (
	"context"
	"fmt"

	"github.com/hay-kot/postbox/internal/core/pubsub"
)

// OrphanCheck detects pending messages whose topic has been deleted. Topic deletion does
// not cascade, so such messages stay deliverable until acknowledged or removed here.
type OrphanCheck struct {
	cols pubsub.Collections
	fix  bool
}

// NewOrphanCheck creates a new orphan message check.
// If fix is true, orphaned messages are removed.
func NewOrphanCheck(cols pubsub.Collections, fix bool) *OrphanCheck {
	return &OrphanCheck{cols: cols, fix: fix}
}

func (c *OrphanCheck) Name() string {
	return "Orphan Messages"
}

func (c *OrphanCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	topics, err := c.cols.Topics.Load(ctx)
	if err != nil {
		result.fail("Load topics", err.Error())
		return result
	}

	known := make(map[string]bool, len(topics))
	for _, t := range topics {
		known[t.Name] = true
	}

	messages, err := c.cols.Messages.Load(ctx)
	if err != nil {
		result.fail("Load messages", err.Error())
		return result
	}

	var orphans []pubsub.PendingMessage
	for _, m := range messages {
		if !known[m.TopicName] {
			orphans = append(orphans, m)
		}
	}

	if len(orphans) == 0 {
		result.pass("No orphan messages", "")
		return result
	}

	if !c.fix {
		for _, m := range orphans {
			result.warn(m.TopicName, fmt.Sprintf("%q has no topic (%d undelivered)", m.Content, len(m.NotDeliveredTo)), true)
		}
		return result
	}

	var removed int
	err = c.cols.Messages.Update(ctx, func(messages []pubsub.PendingMessage) ([]pubsub.PendingMessage, error) {
		kept := messages[:0]
		for _, m := range messages {
			if !known[m.TopicName] {
				removed++
				continue
			}
			kept = append(kept, m)
		}
		return kept, nil
	})
	if err != nil {
		result.fail("Remove orphan messages", err.Error())
		return result
	}

	result.pass("Removed orphan messages", fmt.Sprintf("%d removed", removed))
	return result
}
