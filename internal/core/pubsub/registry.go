package pubsub

import (
	"context"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/hay-kot/postbox/internal/core/store"
)

// TopicFilter selects topics for ListTopics. Exactly one of User or Name should be set;
// Match optionally narrows the result with a doublestar glob over topic names.
type TopicFilter struct {
	User  string
	Name  string
	Match string
}

// TopicRegistry manages topic records.
type TopicRegistry struct {
	topics      store.Collection[Topic]
	uniqueNames bool
}

// NewTopicRegistry creates a registry over the topics collection.
func NewTopicRegistry(topics store.Collection[Topic]) *TopicRegistry {
	return &TopicRegistry{topics: topics}
}

// WithUniqueNames rejects creating a topic whose name is already taken.
func (r *TopicRegistry) WithUniqueNames(unique bool) *TopicRegistry {
	r.uniqueNames = unique
	return r
}

// ListTopics returns the topics selected by f.
//
//   - User: every topic the user is a member of.
//   - Name: the first topic with that name (at most one result).
//   - Match only: every topic whose name matches the glob.
//
// Returns ErrNoFilter when no filter is given.
func (r *TopicRegistry) ListTopics(ctx context.Context, f TopicFilter) ([]Topic, error) {
	if f.User == "" && f.Name == "" && f.Match == "" {
		return nil, ErrNoFilter
	}

	if f.Match != "" && !doublestar.ValidatePattern(f.Match) {
		return nil, fmt.Errorf("%w: bad pattern %q", ErrInvalidOperation, f.Match)
	}

	topics, err := r.topics.Load(ctx)
	if err != nil {
		return nil, err
	}

	result := []Topic{}

	switch {
	case f.User != "":
		for _, t := range topics {
			if t.HasMember(f.User) {
				result = append(result, t)
			}
		}
	case f.Name != "":
		if i := firstTopic(topics, f.Name); i >= 0 {
			result = append(result, topics[i])
		}
	default:
		result = topics
	}

	if f.Match == "" {
		return result, nil
	}

	matched := []Topic{}
	for _, t := range result {
		if ok, _ := doublestar.Match(f.Match, t.Name); ok {
			matched = append(matched, t)
		}
	}
	return matched, nil
}

// GetTopic returns the first topic named name. Returns ErrNotFound if absent.
func (r *TopicRegistry) GetTopic(ctx context.Context, name string) (Topic, error) {
	topics, err := r.topics.Load(ctx)
	if err != nil {
		return Topic{}, err
	}

	i := firstTopic(topics, name)
	if i < 0 {
		return Topic{}, fmt.Errorf("topic %q: %w", name, ErrNotFound)
	}
	return topics[i], nil
}

// CreateTopic appends a new topic with user as creator and sole member.
func (r *TopicRegistry) CreateTopic(ctx context.Context, name, user string, private bool) error {
	if name == "" || user == "" {
		return fmt.Errorf("%w: topic name and creator are required", ErrInvalidOperation)
	}

	return r.topics.Update(ctx, func(topics []Topic) ([]Topic, error) {
		if r.uniqueNames && firstTopic(topics, name) >= 0 {
			return nil, fmt.Errorf("%w: topic %q already exists", ErrInvalidOperation, name)
		}
		return append(topics, NewTopic(name, user, private)), nil
	})
}

// DeleteTopic removes the first topic named name. Pending messages of the topic are kept.
func (r *TopicRegistry) DeleteTopic(ctx context.Context, name string) error {
	return r.topics.Update(ctx, func(topics []Topic) ([]Topic, error) {
		i := firstTopic(topics, name)
		if i < 0 {
			return nil, fmt.Errorf("topic %q: %w", name, ErrNotFound)
		}
		return append(topics[:i], topics[i+1:]...), nil
	})
}
