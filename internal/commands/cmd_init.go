package commands

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/postbox/internal/core/config"
	"github.com/hay-kot/postbox/internal/printer"
)

type InitCmd struct {
	flags  *Flags
	secret bool
}

// NewInitCmd creates a new init command
func NewInitCmd(flags *Flags) *InitCmd {
	return &InitCmd{flags: flags}
}

// Register adds the init command to the application
func (cmd *InitCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "init",
		Usage:     "Create empty topic, message and user collections",
		UsageText: "postbox init [--secret]",
		Description: `Creates any missing collection in the configured storage backend.
Existing collections are left untouched.

Use --secret to also write a random signing key to the token secret file when it
does not exist yet.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "secret",
				Usage:       "generate the token secret file if missing",
				Destination: &cmd.secret,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *InitCmd) run(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)
	cfg := cmd.flags.Config

	if err := cmd.flags.Service.Init(ctx); err != nil {
		return err
	}
	p.Success("Collections ready", fmt.Sprintf("%s (%s)", cfg.DataDir, cfg.Storage.Backend))

	if !cmd.secret {
		if _, err := os.Stat(cfg.SecretPath()); err != nil && os.Getenv(config.SecretKeyEnv) == "" {
			p.Warnf("No token secret found; run 'postbox init --secret' before 'postbox serve'")
		}
		return nil
	}

	path := cfg.SecretPath()
	if _, err := os.Stat(path); err == nil {
		p.Infof("Secret file %s already exists", path)
		return nil
	}

	if err := writeSecret(path); err != nil {
		return err
	}
	p.Success("Secret written", path)

	return nil
}

func writeSecret(path string) error {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return fmt.Errorf("generate secret: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create secret dir: %w", err)
	}

	if err := godotenv.Write(map[string]string{config.SecretKeyEnv: hex.EncodeToString(key)}, path); err != nil {
		return fmt.Errorf("write secret: %w", err)
	}

	return os.Chmod(path, 0o600)
}
