// Package pubsub implements topic membership and pending-message delivery tracking.
package pubsub

import (
	"fmt"
	"slices"
)

// Topic is a named channel with a membership set and a privacy flag.
type Topic struct {
	Name      string   `json:"topic_name"`
	Creator   string   `json:"creator"`
	IsPrivate bool     `json:"is_private"`
	Members   []string `json:"members"`
}

// NewTopic returns a topic whose creator is its only member.
func NewTopic(name, creator string, private bool) Topic {
	return Topic{
		Name:      name,
		Creator:   creator,
		IsPrivate: private,
		Members:   []string{creator},
	}
}

// HasMember reports whether user belongs to the topic.
func (t *Topic) HasMember(user string) bool {
	return slices.Contains(t.Members, user)
}

// CanRead reports whether user may read the topic. Public topics are readable by anyone.
func (t *Topic) CanRead(user string) bool {
	return !t.IsPrivate || t.HasMember(user)
}

// CanWrite reports whether user may post to the topic.
func (t *Topic) CanWrite(user string) bool {
	return t.HasMember(user)
}

// Admit adds user to the members. Public topics are self-service; private topics require
// a sponsor who is already a member.
func (t *Topic) Admit(user, sponsor string) error {
	if user == "" {
		return fmt.Errorf("%w: empty username", ErrInvalidOperation)
	}

	if t.HasMember(user) {
		return fmt.Errorf("%w: %q is already a member of %q", ErrInvalidOperation, user, t.Name)
	}

	if t.IsPrivate {
		if sponsor == "" {
			return fmt.Errorf("%w: private topic %q requires a sponsor", ErrInvalidOperation, t.Name)
		}
		if !t.HasMember(sponsor) {
			return fmt.Errorf("%w: sponsor %q is not a member of %q", ErrInvalidOperation, sponsor, t.Name)
		}
	}

	t.Members = append(t.Members, user)
	return nil
}

// firstTopic returns the index of the first topic named name, or -1.
func firstTopic(topics []Topic, name string) int {
	return slices.IndexFunc(topics, func(t Topic) bool { return t.Name == name })
}
