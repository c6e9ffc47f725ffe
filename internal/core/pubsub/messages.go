package pubsub

import (
	"context"
	"fmt"

	"github.com/hay-kot/postbox/internal/core/store"
)

// MessageStore tracks pending messages and their undelivered recipients.
type MessageStore struct {
	messages store.Collection[PendingMessage]
	topics   store.Collection[Topic]
}

// NewMessageStore creates a message store. The topics collection is only read, to resolve
// broadcast recipients.
func NewMessageStore(messages store.Collection[PendingMessage], topics store.Collection[Topic]) *MessageStore {
	return &MessageStore{messages: messages, topics: topics}
}

// CreateMessage enrolls p.User as a recipient of the (topic, content) message, creating
// the record when it does not exist yet. Enrolling an existing recipient is a no-op.
func (s *MessageStore) CreateMessage(ctx context.Context, p Post) error {
	if p.TopicName == "" || p.User == "" {
		return fmt.Errorf("%w: topic name and recipient are required", ErrInvalidOperation)
	}

	return s.messages.Update(ctx, func(messages []PendingMessage) ([]PendingMessage, error) {
		return enroll(messages, MessageRef{TopicName: p.TopicName, Content: p.Content}, p.User), nil
	})
}

// Broadcast enrolls every member of the first topic named topicName in a single write.
// It returns the number of recipients.
func (s *MessageStore) Broadcast(ctx context.Context, topicName, content string) (int, error) {
	topics, err := s.topics.Load(ctx)
	if err != nil {
		return 0, err
	}

	i := firstTopic(topics, topicName)
	if i < 0 {
		return 0, fmt.Errorf("topic %q: %w", topicName, ErrNotFound)
	}
	members := topics[i].Members

	ref := MessageRef{TopicName: topicName, Content: content}
	err = s.messages.Update(ctx, func(messages []PendingMessage) ([]PendingMessage, error) {
		for _, member := range members {
			messages = enroll(messages, ref, member)
		}
		return messages, nil
	})
	if err != nil {
		return 0, err
	}

	return len(members), nil
}

// GetMessages returns every message still pending for user.
func (s *MessageStore) GetMessages(ctx context.Context, user string) ([]PendingMessage, error) {
	messages, err := s.messages.Load(ctx)
	if err != nil {
		return nil, err
	}

	pending := []PendingMessage{}
	for _, m := range messages {
		if m.PendingFor(user) {
			pending = append(pending, m)
		}
	}
	return pending, nil
}

// AcknowledgeMessages removes user from the undelivered set of every message matching one
// of refs. Acknowledging twice is a no-op.
func (s *MessageStore) AcknowledgeMessages(ctx context.Context, refs []MessageRef, user string) error {
	wanted := make(map[MessageRef]struct{}, len(refs))
	for _, ref := range refs {
		wanted[ref] = struct{}{}
	}

	return s.messages.Update(ctx, func(messages []PendingMessage) ([]PendingMessage, error) {
		for i := range messages {
			if _, ok := wanted[messages[i].Ref()]; ok {
				messages[i].acknowledge(user)
			}
		}
		return messages, nil
	})
}

// PruneDelivered removes messages that every recipient has acknowledged and returns how
// many were removed.
func (s *MessageStore) PruneDelivered(ctx context.Context) (int, error) {
	var removed int

	err := s.messages.Update(ctx, func(messages []PendingMessage) ([]PendingMessage, error) {
		kept := messages[:0]
		for _, m := range messages {
			if m.Delivered() {
				removed++
				continue
			}
			kept = append(kept, m)
		}
		return kept, nil
	})
	if err != nil {
		return 0, err
	}

	return removed, nil
}

// enroll adds user to every record matching ref, or appends a new record when none match.
func enroll(messages []PendingMessage, ref MessageRef, user string) []PendingMessage {
	found := false
	for i := range messages {
		if messages[i].Ref() == ref {
			messages[i].enroll(user)
			found = true
		}
	}

	if found {
		return messages
	}

	return append(messages, PendingMessage{
		TopicName:      ref.TopicName,
		Action:         ActionMessage,
		Content:        ref.Content,
		NotDeliveredTo: []string{user},
	})
}
