package pubsub

import (
	"context"
	"fmt"
	"slices"

	"github.com/hay-kot/postbox/internal/core/store"
)

// UserDirectory assigns stable identifiers to usernames.
type UserDirectory struct {
	users  store.Collection[User]
	unique bool
}

// NewUserDirectory creates a directory over the users collection.
func NewUserDirectory(users store.Collection[User]) *UserDirectory {
	return &UserDirectory{users: users}
}

// WithUniqueUsernames rejects registering a username twice.
func (d *UserDirectory) WithUniqueUsernames(unique bool) *UserDirectory {
	d.unique = unique
	return d
}

// ListUsers returns every user in registration order.
func (d *UserDirectory) ListUsers(ctx context.Context) ([]User, error) {
	users, err := d.users.Load(ctx)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []User{}
	}
	return users, nil
}

// GetUser returns the first user registered as username. Returns ErrNotFound if absent.
func (d *UserDirectory) GetUser(ctx context.Context, username string) (User, error) {
	users, err := d.users.Load(ctx)
	if err != nil {
		return User{}, err
	}

	i := indexUser(users, username)
	if i < 0 {
		return User{}, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	return users[i], nil
}

// CreateUser registers username with the next free identifier.
func (d *UserDirectory) CreateUser(ctx context.Context, username string) (User, error) {
	if username == "" {
		return User{}, fmt.Errorf("%w: empty username", ErrInvalidOperation)
	}

	var created User
	err := d.users.Update(ctx, func(users []User) ([]User, error) {
		if d.unique && indexUser(users, username) >= 0 {
			return nil, fmt.Errorf("%w: user %q already exists", ErrInvalidOperation, username)
		}

		created = User{ID: nextUserID(users), Username: username}
		return append(users, created), nil
	})
	if err != nil {
		return User{}, err
	}

	return created, nil
}

func indexUser(users []User, username string) int {
	return slices.IndexFunc(users, func(u User) bool { return u.Username == username })
}
