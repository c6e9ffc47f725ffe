package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/hay-kot/postbox/internal/commands"
	"github.com/hay-kot/postbox/internal/core/config"
	"github.com/hay-kot/postbox/internal/core/pubsub"
	"github.com/hay-kot/postbox/internal/metrics"
	"github.com/hay-kot/postbox/internal/printer"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	version = "dev"
	commit  = "HEAD"
	date    = "now"
)

func build() string {
	short := commit
	if len(commit) > 7 {
		short = commit[:7]
	}

	return fmt.Sprintf("%s (%s) %s", version, short, date)
}

func main() {
	if err := setupLogger("info", ""); err != nil {
		panic(err)
	}

	var (
		p      = printer.New(os.Stderr)
		ctx    = printer.NewContext(context.Background(), p)
		flags  = &commands.Flags{}
		closer io.Closer
	)

	app := &cli.Command{
		Name:      "postbox",
		Usage:     "Topic based message delivery with per-recipient acknowledgment",
		UsageText: "postbox [global options] command [command options]",
		Description: `Postbox keeps users, topics and pending messages in three collections.

Users join public topics on their own or private topics through a sponsoring member.
Messages posted to a topic wait for every recipient to acknowledge them.

Run 'postbox init' once to create the collections, then 'postbox serve' to expose
the HTTP API or use the user, topic and msg commands directly.`,
		Version: build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error, fatal, panic)",
				Sources:     cli.EnvVars("POSTBOX_LOG_LEVEL"),
				Value:       "info",
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file (optional)",
				Sources:     cli.EnvVars("POSTBOX_LOG_FILE"),
				Destination: &flags.LogFile,
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("POSTBOX_CONFIG"),
				Value:       commands.DefaultConfigPath(),
				Destination: &flags.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "data-dir",
				Usage:       "path to data directory",
				Sources:     cli.EnvVars("POSTBOX_DATA_DIR"),
				Value:       commands.DefaultDataDir(),
				Destination: &flags.DataDir,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			if err := setupLogger(flags.LogLevel, flags.LogFile); err != nil {
				return ctx, err
			}

			cfg, err := config.Load(flags.ConfigPath, flags.DataDir)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			flags.Config = cfg
			flags.Metrics = metrics.New()

			logger := log.With().Str("component", "pubsub").Logger()

			cols, cl, err := commands.OpenCollections(cfg, log.With().Str("component", "store").Logger())
			if err != nil {
				return ctx, err
			}
			closer = cl
			flags.Collections = cols

			flags.Service = pubsub.New(cols, pubsub.Options{
				UniqueTopicNames: cfg.Storage.UniqueTopicNames,
				UniqueUsernames:  cfg.Storage.UniqueUsernames,
			}, logger, flags.Metrics)

			return ctx, nil
		},
		After: func(context.Context, *cli.Command) error {
			if closer == nil {
				return nil
			}
			return closer.Close()
		},
	}

	app = commands.NewInitCmd(flags).Register(app)
	app = commands.NewServeCmd(flags).Register(app)
	app = commands.NewUserCmd(flags).Register(app)
	app = commands.NewTopicCmd(flags).Register(app)
	app = commands.NewMsgCmd(flags).Register(app)
	app = commands.NewTokenCmd(flags).Register(app)
	app = commands.NewConfigValidateCmd(flags).Register(app)
	app = commands.NewDoctorCmd(flags).Register(app)

	exitCode := 0
	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Println()
		printer.Ctx(ctx).FatalError(err)
		exitCode = 1
	}

	os.Exit(exitCode)
}

func setupLogger(level string, logFile string) error {
	parsedLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}

	var output io.Writer = os.Stderr
	if term.IsTerminal(int(os.Stderr.Fd())) {
		output = zerolog.ConsoleWriter{Out: os.Stderr}
	}

	if logFile != "" {
		// Create log directory if it doesn't exist
		logDir := filepath.Dir(logFile)
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}

		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}

		// Write to both console and file
		output = io.MultiWriter(output, file)
	}

	log.Logger = log.Output(output).Level(parsedLevel)

	return nil
}
