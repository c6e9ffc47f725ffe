// Package validate provides shared validation functions.
package validate

import (
	"fmt"
	"strings"
	"unicode"
)

// Username validates a username is non-empty after trimming whitespace and
// contains no control characters.
func Username(name string) error {
	return identifier("username", name)
}

// TopicName validates a topic name is non-empty after trimming whitespace and
// contains no control characters.
func TopicName(name string) error {
	return identifier("topic name", name)
}

func identifier(kind, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", kind)
	}
	if strings.IndexFunc(value, unicode.IsControl) >= 0 {
		return fmt.Errorf("%s must not contain control characters", kind)
	}
	return nil
}
