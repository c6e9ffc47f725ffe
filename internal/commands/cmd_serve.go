package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/postbox/internal/api"
	"github.com/hay-kot/postbox/internal/auth"
	"github.com/hay-kot/postbox/internal/core/config"
)

type ServeCmd struct {
	flags *Flags
	addr  string
}

// NewServeCmd creates a new serve command
func NewServeCmd(flags *Flags) *ServeCmd {
	return &ServeCmd{flags: flags}
}

// Register adds the serve command to the application
func (cmd *ServeCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "serve",
		Usage:     "Run the HTTP API",
		UsageText: "postbox serve [--addr host:port]",
		Description: `Serves the postbox HTTP API until interrupted.

Tokens are signed with POSTBOX_SECRET_KEY, read from the environment or from the
configured secret file. Run 'postbox init --secret' to generate one.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address (overrides http.addr)",
				Sources:     cli.EnvVars("POSTBOX_ADDR"),
				Destination: &cmd.addr,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *ServeCmd) run(ctx context.Context, _ *cli.Command) error {
	cfg := cmd.flags.Config

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

	opts := api.Options{
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
		Metrics:         cmd.flags.Metrics.Handler(),
	}
	if !cfg.RateLimit.Disabled {
		opts.RateLimit = api.RateLimit{RPS: cfg.RateLimit.RPS, Burst: cfg.RateLimit.Burst}
	}

	addr := cfg.HTTP.Addr
	if cmd.addr != "" {
		addr = cmd.addr
	}

	logger := log.With().Str("component", "api").Logger()
	srv := api.New(cmd.flags.Service, tokens, cmd.flags.Metrics, opts, logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.ListenAndServe(ctx, addr)
}
