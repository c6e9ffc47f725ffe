package pubsub

import "slices"

// ActionMessage is the action recorded on every pending message.
const ActionMessage = "message"

// PendingMessage is a message keyed by (topic, content) carrying the recipients that have
// not acknowledged it yet.
type PendingMessage struct {
	TopicName      string   `json:"topic_name"`
	Action         string   `json:"action"`
	Content        string   `json:"content"`
	NotDeliveredTo []string `json:"not_delivered_to"`
}

// MessageRef identifies a pending message.
type MessageRef struct {
	TopicName string `json:"topic_name"`
	Content   string `json:"content"`
}

// Post is a request to enroll a single recipient for a message.
type Post struct {
	TopicName string `json:"topic_name"`
	Content   string `json:"content"`
	User      string `json:"user"`
}

// Ref returns the identity key of the message.
func (m *PendingMessage) Ref() MessageRef {
	return MessageRef{TopicName: m.TopicName, Content: m.Content}
}

// PendingFor reports whether user still owes a delivery of this message.
func (m *PendingMessage) PendingFor(user string) bool {
	return slices.Contains(m.NotDeliveredTo, user)
}

// Delivered reports whether every recipient acknowledged the message.
func (m *PendingMessage) Delivered() bool {
	return len(m.NotDeliveredTo) == 0
}

// enroll adds user to the undelivered set. It returns false when user was already there.
func (m *PendingMessage) enroll(user string) bool {
	if m.PendingFor(user) {
		return false
	}
	m.NotDeliveredTo = append(m.NotDeliveredTo, user)
	return true
}

// acknowledge removes user from the undelivered set. Removing an absent user is a no-op.
func (m *PendingMessage) acknowledge(user string) {
	m.NotDeliveredTo = slices.DeleteFunc(m.NotDeliveredTo, func(u string) bool { return u == user })
}
