package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/postbox/internal/auth"
	"github.com/hay-kot/postbox/internal/core/config"
)

type TokenCmd struct {
	flags *Flags
}

// NewTokenCmd creates a new token command
func NewTokenCmd(flags *Flags) *TokenCmd {
	return &TokenCmd{flags: flags}
}

// Register adds the token command to the application
func (cmd *TokenCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "token",
		Usage: "Manage API tokens",
		Commands: []*cli.Command{
			{
				Name:        "issue",
				Usage:       "Issue a bearer token for a registered user",
				UsageText:   "postbox token issue <username>",
				Description: "Prints a signed token for the user. The token is valid for token.lifetime.",
				Action:      cmd.runIssue,
			},
		},
	})

	return app
}

func (cmd *TokenCmd) runIssue(ctx context.Context, c *cli.Command) error {
	cfg := cmd.flags.Config

	username := c.Args().First()
	user, ok := cmd.flags.Service.GetUser(ctx, username)
	if !ok {
		return fmt.Errorf("unknown user %q", username)
	}

	secret, err := auth.LoadSecret(cfg.SecretPath(), config.SecretKeyEnv)
	if err != nil {
		return fmt.Errorf("load token secret: %w", err)
	}

	tokens, err := auth.NewTokens(secret, auth.Options{
		Algorithm: cfg.Token.Algorithm,
		Lifetime:  cfg.Token.Lifetime,
		Issuer:    cfg.Token.Issuer,
	})
	if err != nil {
		return err
	}

	token, err := tokens.Issue(user.Username, map[string]any{"uid": user.ID})
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(c.Root().Writer, token)
	return err
}
