package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/hay-kot/criterio"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/postbox/internal/core/config"
	"github.com/hay-kot/postbox/internal/printer"
)

type ConfigValidateCmd struct {
	flags  *Flags
	format string
}

// NewConfigValidateCmd creates a new config validate command.
func NewConfigValidateCmd(flags *Flags) *ConfigValidateCmd {
	return &ConfigValidateCmd{flags: flags}
}

// Register adds the config validate command to the application.
func (cmd *ConfigValidateCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "config",
		Usage: "Configuration management commands",
		Commands: []*cli.Command{
			{
				Name:        "validate",
				Usage:       "Validate configuration file",
				UsageText:   "postbox config validate [options]",
				Description: "Validates the configuration file, checking field values, the listen address, file paths and the token secret.",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "format",
						Usage:       "output format (text, json)",
						Value:       "text",
						Destination: &cmd.format,
					},
				},
				Action: cmd.run,
			},
		},
	})

	return app
}

func (cmd *ConfigValidateCmd) run(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)

	if cmd.flags.Config == nil {
		return fmt.Errorf("configuration not loaded")
	}

	err := cmd.flags.Config.ValidateDeep(cmd.flags.ConfigPath)
	warnings := cmd.flags.Config.Warnings()

	if cmd.format == "json" {
		return cmd.outputJSON(c, err, warnings)
	}

	return cmd.outputText(p, err, warnings)
}

func (cmd *ConfigValidateCmd) outputJSON(c *cli.Command, validationErr error, warnings []config.ValidationWarning) error {
	type fieldError struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	}

	out := struct {
		Valid    bool                       `json:"valid"`
		Resolved map[string]string          `json:"resolved"`
		Errors   []fieldError               `json:"errors,omitempty"`
		Warnings []config.ValidationWarning `json:"warnings,omitempty"`
	}{
		Valid:    validationErr == nil,
		Resolved: resolvedSettings(cmd.flags.Config),
		Warnings: warnings,
	}

	for _, fe := range extractFieldErrors(validationErr) {
		out.Errors = append(out.Errors, fieldError{Field: fe.Field, Message: fe.Err.Error()})
	}

	enc := json.NewEncoder(c.Root().Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// extractFieldErrors extracts field errors from a validation error.
func extractFieldErrors(err error) criterio.FieldErrors {
	if err == nil {
		return nil
	}
	var fieldErrs criterio.FieldErrors
	if errors.As(err, &fieldErrs) {
		return fieldErrs
	}
	return criterio.FieldErrors{{Err: err}}
}

// resolvedSettings lists the effective values most often misconfigured.
func resolvedSettings(cfg *config.Config) map[string]string {
	settings := map[string]string{
		"data_dir":        cfg.DataDir,
		"storage.backend": cfg.Storage.Backend,
		"http.addr":       cfg.HTTP.Addr,
		"token.secret":    cfg.SecretPath(),
	}
	if cfg.Storage.Backend == config.BackendPebble {
		settings["storage.path"] = cfg.PebbleDir()
	}
	return settings
}

func (cmd *ConfigValidateCmd) outputText(p *printer.Printer, validationErr error, warnings []config.ValidationWarning) error {
	fieldErrs := extractFieldErrors(validationErr)

	resolved := resolvedSettings(cmd.flags.Config)
	keys := make([]string, 0, len(resolved))
	for k := range resolved {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	p.Heading("Resolved")
	for _, k := range keys {
		p.Printf("  %s: %s", k, resolved[k])
	}
	p.Printf("")

	if len(fieldErrs) > 0 {
		p.Heading("Errors")
		for _, fe := range fieldErrs {
			p.Item(printer.LevelFail, fe.Field, fe.Err.Error())
		}
		p.Printf("")
	}

	if len(warnings) > 0 {
		p.Heading("Warnings")
		for _, warn := range warnings {
			label := warn.Category
			if warn.Item != "" {
				label += " " + warn.Item
			}
			p.Item(printer.LevelWarn, label, warn.Message)
		}
		p.Printf("")
	}

	if validationErr == nil {
		p.Successf("Configuration is valid (%d warning(s))", len(warnings))
		return nil
	}

	p.Errorf("%d error(s), %d warning(s)", len(fieldErrs), len(warnings))
	return cli.Exit("", 1)
}
