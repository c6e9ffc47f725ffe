package config

import (
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/hay-kot/criterio"
	"github.com/joho/godotenv"
)

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Category string `json:"category"`
	Item     string `json:"item,omitempty"`
	Message  string `json:"message"`
}

// ValidateDeep performs comprehensive validation of the configuration.
// Unlike Validate(), this checks the listen address and file access.
func (c *Config) ValidateDeep(configPath string) error {
	var errs criterio.FieldErrorsBuilder

	if err := c.Validate(); err != nil {
		var fieldErrs criterio.FieldErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			errs = errs.Append(fe.Field, fe.Err)
		}
	}

	if configPath != "" {
		if info, err := os.Stat(configPath); err == nil && info.IsDir() {
			errs = errs.Append("config", fmt.Errorf("%s is a directory, not a file", configPath))
		} else if err != nil && !os.IsNotExist(err) {
			errs = errs.Append("config", fmt.Errorf("cannot access %s: %w", configPath, err))
		}
	}

	if c.DataDir != "" {
		if info, err := os.Stat(c.DataDir); err == nil && !info.IsDir() {
			errs = errs.Append("data_dir", fmt.Errorf("%s exists but is not a directory", c.DataDir))
		}
	}

	if c.HTTP.Addr != "" {
		if _, _, err := net.SplitHostPort(c.HTTP.Addr); err != nil {
			errs = errs.Append("http.addr", fmt.Errorf("invalid listen address: %w", err))
		}
	}

	return errs.ToError()
}

// Warnings returns non-fatal configuration issues.
func (c *Config) Warnings() []ValidationWarning {
	var warnings []ValidationWarning

	if c.RateLimit.Disabled {
		warnings = append(warnings, ValidationWarning{
			Category: "Rate Limit",
			Message:  "rate limiting is disabled",
		})
	}

	env, err := godotenv.Read(c.SecretPath())
	switch {
	case err != nil && os.Getenv(SecretKeyEnv) == "":
		warnings = append(warnings, ValidationWarning{
			Category: "Token",
			Item:     "secret_file",
			Message:  fmt.Sprintf("cannot read %s and %s is unset; tokens cannot be issued", c.SecretPath(), SecretKeyEnv),
		})
	case err == nil && env[SecretKeyEnv] == "" && os.Getenv(SecretKeyEnv) == "":
		warnings = append(warnings, ValidationWarning{
			Category: "Token",
			Item:     "secret_file",
			Message:  fmt.Sprintf("%s does not define %s", c.SecretPath(), SecretKeyEnv),
		})
	}

	if !c.Storage.UniqueTopicNames {
		warnings = append(warnings, ValidationWarning{
			Category: "Storage",
			Item:     "unique_topic_names",
			Message:  "duplicate topic names are allowed; only the first match is used",
		})
	}

	return warnings
}
