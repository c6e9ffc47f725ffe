package doctor

import (
	"context"
	"errors"
	"fmt"

	"github.com/hay-kot/criterio"

	"github.com/hay-kot/postbox/internal/core/config"
)

// ConfigCheck validates the configuration file.
type ConfigCheck struct {
	config     *config.Config
	configPath string
}

// NewConfigCheck creates a new configuration check.
func NewConfigCheck(cfg *config.Config, configPath string) *ConfigCheck {
	return &ConfigCheck{
		config:     cfg,
		configPath: configPath,
	}
}

func (c *ConfigCheck) Name() string {
	return "Configuration"
}

func (c *ConfigCheck) Run(_ context.Context) Result {
	result := Result{Name: c.Name()}

	if c.config == nil {
		result.fail("Config loaded", "configuration not loaded")
		return result
	}

	err := c.config.ValidateDeep(c.configPath)
	if err == nil {
		result.pass("Config valid", fmt.Sprintf("%s backend in %s", c.config.Storage.Backend, c.config.DataDir))
	}

	var fieldErrs criterio.FieldErrors
	switch {
	case err == nil:
	case errors.As(err, &fieldErrs):
		for _, fe := range fieldErrs {
			label := fe.Field
			if label == "" {
				label = "validation"
			}
			result.fail(label, fe.Err.Error())
		}
	default:
		result.fail("validation", err.Error())
	}

	for _, w := range c.config.Warnings() {
		label := w.Category
		if w.Item != "" {
			label += " (" + w.Item + ")"
		}
		result.warn(label, w.Message, false)
	}

	return result
}
