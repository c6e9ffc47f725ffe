package auth

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// LoadSecret reads key from the env file at path. The process environment takes
// precedence, and a missing file is only an error when the variable is unset.
func LoadSecret(path, key string) ([]byte, error) {
	if v := os.Getenv(key); v != "" {
		return []byte(v), nil
	}

	env, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s is unset and %s does not exist", ErrNoSecret, key, path)
		}
		return nil, fmt.Errorf("read secret file: %w", err)
	}

	v := env[key]
	if v == "" {
		return nil, fmt.Errorf("%w: %s does not define %s", ErrNoSecret, path, key)
	}
	return []byte(v), nil
}
