package pubsub

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/hay-kot/postbox/internal/core/store"
)

// Recorder observes the outcome of every Service operation.
type Recorder interface {
	Observe(op, reason string)
}

type nopRecorder struct{}

func (nopRecorder) Observe(string, string) {}

// Collections groups the three persisted collections.
type Collections struct {
	Topics   store.Collection[Topic]
	Messages store.Collection[PendingMessage]
	Users    store.Collection[User]
}

// Options configures the Service.
type Options struct {
	UniqueTopicNames bool
	UniqueUsernames  bool
}

// Service exposes the pubsub operations with a success/failure contract: failures are
// logged and reported as false or an empty result, never returned to the caller.
type Service struct {
	collections Collections
	registry    *TopicRegistry
	membership  *Membership
	messages    *MessageStore
	users       *UserDirectory
	log         zerolog.Logger
	recorder    Recorder
}

// New creates a new Service. A nil recorder disables observation.
func New(c Collections, opts Options, log zerolog.Logger, recorder Recorder) *Service {
	if recorder == nil {
		recorder = nopRecorder{}
	}

	return &Service{
		collections: c,
		registry:    NewTopicRegistry(c.Topics).WithUniqueNames(opts.UniqueTopicNames),
		membership:  NewMembership(c.Topics),
		messages:    NewMessageStore(c.Messages, c.Topics),
		users:       NewUserDirectory(c.Users).WithUniqueUsernames(opts.UniqueUsernames),
		log:         log,
		recorder:    recorder,
	}
}

// Init creates any missing collection.
func (s *Service) Init(ctx context.Context) error {
	if err := s.collections.Topics.Init(ctx); err != nil {
		return fmt.Errorf("init topics: %w", err)
	}
	if err := s.collections.Messages.Init(ctx); err != nil {
		return fmt.Errorf("init messages: %w", err)
	}
	if err := s.collections.Users.Init(ctx); err != nil {
		return fmt.Errorf("init users: %w", err)
	}
	return nil
}

// observe records the outcome of op and reports whether it succeeded.
func (s *Service) observe(op string, err error) bool {
	reason := Reason(err)
	s.recorder.Observe(op, reason)

	if err == nil {
		return true
	}

	level := zerolog.DebugLevel
	if errors.Is(err, store.ErrUnavailable) || errors.Is(err, store.ErrCorrupt) || reason == "error" {
		level = zerolog.ErrorLevel
	}
	s.log.WithLevel(level).Err(err).Str("op", op).Str("reason", reason).Msg("operation failed")

	return false
}

// ListTopics returns the topics selected by f, or an empty list on failure.
func (s *Service) ListTopics(ctx context.Context, f TopicFilter) []Topic {
	topics, err := s.registry.ListTopics(ctx, f)
	if !s.observe("list_topics", err) {
		return []Topic{}
	}
	return topics
}

// GetTopic returns the first topic named name.
func (s *Service) GetTopic(ctx context.Context, name string) (Topic, bool) {
	t, err := s.registry.GetTopic(ctx, name)
	return t, s.observe("get_topic", err)
}

// CreateTopic creates a topic owned by user.
func (s *Service) CreateTopic(ctx context.Context, name, user string, private bool) bool {
	err := s.registry.CreateTopic(ctx, name, user, private)
	if err == nil {
		s.log.Info().Str("topic", name).Str("creator", user).Bool("private", private).Msg("topic created")
	}
	return s.observe("create_topic", err)
}

// DeleteTopic removes the first topic named name.
func (s *Service) DeleteTopic(ctx context.Context, name string) bool {
	err := s.registry.DeleteTopic(ctx, name)
	if err == nil {
		s.log.Info().Str("topic", name).Msg("topic deleted")
	}
	return s.observe("delete_topic", err)
}

// AddMember admits user to topicName, sponsored by sponsor for private topics.
func (s *Service) AddMember(ctx context.Context, topicName, user, sponsor string) bool {
	err := s.membership.AddMember(ctx, topicName, user, sponsor)
	return s.observe("add_member", err)
}

// CanRead reports whether user may read topicName. Unknown topics are unreadable.
func (s *Service) CanRead(ctx context.Context, topicName, user string) bool {
	ok, err := s.membership.CanRead(ctx, topicName, user)
	return s.observe("can_read", err) && ok
}

// CanWrite reports whether user may post to topicName.
func (s *Service) CanWrite(ctx context.Context, topicName, user string) bool {
	ok, err := s.membership.CanWrite(ctx, topicName, user)
	return s.observe("can_write", err) && ok
}

// CreateMessage enrolls a single recipient for a message.
func (s *Service) CreateMessage(ctx context.Context, p Post) bool {
	err := s.messages.CreateMessage(ctx, p)
	return s.observe("create_message", err)
}

// Broadcast enrolls every member of topicName as a recipient of content.
func (s *Service) Broadcast(ctx context.Context, topicName, content string) bool {
	n, err := s.messages.Broadcast(ctx, topicName, content)
	if err == nil {
		s.log.Debug().Str("topic", topicName).Int("recipients", n).Msg("message broadcast")
	}
	return s.observe("broadcast", err)
}

// GetMessages returns the messages still pending for user.
func (s *Service) GetMessages(ctx context.Context, user string) []PendingMessage {
	messages, err := s.messages.GetMessages(ctx, user)
	if !s.observe("get_messages", err) {
		return []PendingMessage{}
	}
	return messages
}

// AcknowledgeMessages marks refs as delivered to user.
func (s *Service) AcknowledgeMessages(ctx context.Context, refs []MessageRef, user string) bool {
	err := s.messages.AcknowledgeMessages(ctx, refs, user)
	return s.observe("ack_messages", err)
}

// PruneDelivered removes fully acknowledged messages.
func (s *Service) PruneDelivered(ctx context.Context) (int, bool) {
	n, err := s.messages.PruneDelivered(ctx)
	if err == nil && n > 0 {
		s.log.Info().Int("removed", n).Msg("pruned delivered messages")
	}
	return n, s.observe("prune_delivered", err)
}

// ListUsers returns every registered user.
func (s *Service) ListUsers(ctx context.Context) []User {
	users, err := s.users.ListUsers(ctx)
	if !s.observe("list_users", err) {
		return []User{}
	}
	return users
}

// GetUser returns the first user registered as username.
func (s *Service) GetUser(ctx context.Context, username string) (User, bool) {
	u, err := s.users.GetUser(ctx, username)
	return u, s.observe("get_user", err)
}

// CreateUser registers username.
func (s *Service) CreateUser(ctx context.Context, username string) bool {
	u, err := s.users.CreateUser(ctx, username)
	if err == nil {
		s.log.Info().Int("id", u.ID).Str("username", u.Username).Msg("user created")
	}
	return s.observe("create_user", err)
}
