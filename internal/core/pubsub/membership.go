package pubsub

import (
	"context"
	"fmt"

	"github.com/hay-kot/postbox/internal/core/store"
)

// Membership decides who may join, read and write a topic.
type Membership struct {
	topics store.Collection[Topic]
}

// NewMembership creates a resolver over the topics collection.
func NewMembership(topics store.Collection[Topic]) *Membership {
	return &Membership{topics: topics}
}

// AddMember admits user into the first topic named topicName. A sponsor is required for
// private topics and must already be a member.
func (m *Membership) AddMember(ctx context.Context, topicName, user, sponsor string) error {
	return m.topics.Update(ctx, func(topics []Topic) ([]Topic, error) {
		i := firstTopic(topics, topicName)
		if i < 0 {
			return nil, fmt.Errorf("topic %q: %w", topicName, ErrNotFound)
		}

		if err := topics[i].Admit(user, sponsor); err != nil {
			return nil, err
		}
		return topics, nil
	})
}

// CanRead reports whether user may read topicName.
func (m *Membership) CanRead(ctx context.Context, topicName, user string) (bool, error) {
	t, err := m.lookup(ctx, topicName)
	if err != nil {
		return false, err
	}
	return t.CanRead(user), nil
}

// CanWrite reports whether user may post to topicName.
func (m *Membership) CanWrite(ctx context.Context, topicName, user string) (bool, error) {
	t, err := m.lookup(ctx, topicName)
	if err != nil {
		return false, err
	}
	return t.CanWrite(user), nil
}

func (m *Membership) lookup(ctx context.Context, topicName string) (Topic, error) {
	topics, err := m.topics.Load(ctx)
	if err != nil {
		return Topic{}, err
	}

	i := firstTopic(topics, topicName)
	if i < 0 {
		return Topic{}, fmt.Errorf("topic %q: %w", topicName, ErrNotFound)
	}
	return topics[i], nil
}
