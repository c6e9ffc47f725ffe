package pubsub

// User is a registered account. Users are never mutated after creation.
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}

// nextUserID returns 1 for an empty directory and max(id)+1 otherwise.
func nextUserID(users []User) int {
	if len(users) == 0 {
		return 1
	}

	highest := users[0].ID
	for _, u := range users[1:] {
		highest = max(highest, u.ID)
	}
	return highest + 1
}
