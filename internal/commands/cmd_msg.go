package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/postbox/internal/core/pubsub"
	"github.com/hay-kot/postbox/internal/printer"
)

type MsgCmd struct {
	flags *Flags

	topic string
	user  string
	file  string

	// pending flags
	listen  bool
	timeout time.Duration

	// ack flags
	ackAll bool
}

// NewMsgCmd creates a new msg command.
func NewMsgCmd(flags *Flags) *MsgCmd {
	return &MsgCmd{flags: flags}
}

// Register adds the msg command to the application.
func (cmd *MsgCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "msg",
		Usage: "Post, read and acknowledge pending messages",
		Description: `Message commands operate on the pending message collection.

A message is identified by its topic and content. Posting the same content to the same
topic again adds a recipient to the existing message instead of creating a new one.
Recipients stay attached until they acknowledge; fully acknowledged messages remain
stored until 'postbox msg prune' removes them.`,
		Commands: []*cli.Command{
			cmd.pubCmd(),
			cmd.broadcastCmd(),
			cmd.pendingCmd(),
			cmd.ackCmd(),
			cmd.pruneCmd(),
		},
	})

	return app
}

func (cmd *MsgCmd) topicFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:        "topic",
		Aliases:     []string{"t"},
		Usage:       "topic name",
		Required:    true,
		Destination: &cmd.topic,
	}
}

func (cmd *MsgCmd) fileFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:        "file",
		Aliases:     []string{"f"},
		Usage:       "read message from file",
		Destination: &cmd.file,
	}
}

func (cmd *MsgCmd) pubCmd() *cli.Command {
	return &cli.Command{
		Name:      "pub",
		Usage:     "Enroll a single recipient for a message",
		UsageText: "postbox msg pub --topic <topic> --user <recipient> [message]",
		Description: `Adds one recipient to the (topic, content) message, creating it if needed.

The message can be provided as:
- A command-line argument
- From a file with -f/--file
- From stdin if no argument is provided

Examples:
  postbox msg pub --topic news --user bob "Deploy finished"
  echo "Hello" | postbox msg pub --topic greetings --user bob`,
		Flags:  []cli.Flag{cmd.topicFlag(), userFlag(&cmd.user), cmd.fileFlag()},
		Action: cmd.runPub,
	}
}

func (cmd *MsgCmd) broadcastCmd() *cli.Command {
	return &cli.Command{
		Name:      "broadcast",
		Usage:     "Enroll every topic member for a message",
		UsageText: "postbox msg broadcast --topic <topic> [message]",
		Description: `Adds every current member of the topic as a recipient of the message in a
single write. Members who join later do not receive it.`,
		Flags:  []cli.Flag{cmd.topicFlag(), cmd.fileFlag()},
		Action: cmd.runBroadcast,
	}
}

func (cmd *MsgCmd) pendingCmd() *cli.Command {
	return &cli.Command{
		Name:      "pending",
		Usage:     "Show messages awaiting acknowledgment by a user",
		UsageText: "postbox msg pending --user <name> [--listen [--timeout 30s]]",
		Description: `Prints the user's pending messages as JSON lines and exits.

Use --listen to keep polling and print messages as they arrive until the timeout.`,
		Flags: []cli.Flag{
			userFlag(&cmd.user),
			&cli.BoolFlag{
				Name:        "listen",
				Aliases:     []string{"l"},
				Usage:       "poll for new messages instead of returning immediately",
				Destination: &cmd.listen,
			},
			&cli.DurationFlag{
				Name:        "timeout",
				Usage:       "timeout for --listen mode",
				Value:       30 * time.Second,
				Destination: &cmd.timeout,
			},
		},
		Action: cmd.runPending,
	}
}

func (cmd *MsgCmd) ackCmd() *cli.Command {
	return &cli.Command{
		Name:      "ack",
		Usage:     "Acknowledge messages for a user",
		UsageText: "postbox msg ack --user <name> (--topic <topic> <content>... | --all)",
		Description: `Removes the user from the recipients of the given messages. Acknowledging a
message twice, or one that does not exist, is not an error.`,
		Flags: []cli.Flag{
			userFlag(&cmd.user),
			&cli.StringFlag{
				Name:        "topic",
				Aliases:     []string{"t"},
				Usage:       "topic of the acknowledged messages",
				Destination: &cmd.topic,
			},
			&cli.BoolFlag{
				Name:        "all",
				Aliases:     []string{"a"},
				Usage:       "acknowledge every pending message of the user",
				Destination: &cmd.ackAll,
			},
		},
		Action: cmd.runAck,
	}
}

func (cmd *MsgCmd) pruneCmd() *cli.Command {
	return &cli.Command{
		Name:        "prune",
		Usage:       "Remove fully acknowledged messages",
		UsageText:   "postbox msg prune",
		Description: "Deletes messages that every recipient has acknowledged.",
		Action:      cmd.runPrune,
	}
}

func (cmd *MsgCmd) runPub(ctx context.Context, c *cli.Command) error {
	content, err := cmd.readContent(c)
	if err != nil {
		return err
	}

	post := pubsub.Post{TopicName: cmd.topic, Content: content, User: cmd.user}
	if !cmd.flags.Service.CreateMessage(ctx, post) {
		return fmt.Errorf("could not post message to %q", cmd.topic)
	}

	printer.Ctx(ctx).Successf("Queued message on %s for %s", cmd.topic, cmd.user)
	return nil
}

func (cmd *MsgCmd) runBroadcast(ctx context.Context, c *cli.Command) error {
	content, err := cmd.readContent(c)
	if err != nil {
		return err
	}

	if !cmd.flags.Service.Broadcast(ctx, cmd.topic, content) {
		return fmt.Errorf("could not broadcast to %q", cmd.topic)
	}

	printer.Ctx(ctx).Successf("Broadcast message on %s", cmd.topic)
	return nil
}

func (cmd *MsgCmd) runPending(ctx context.Context, c *cli.Command) error {
	messages := cmd.flags.Service.GetMessages(ctx, cmd.user)
	if err := cmd.printMessages(c.Root().Writer, messages); err != nil {
		return err
	}

	if !cmd.listen {
		return nil
	}

	seen := make(map[pubsub.MessageRef]bool, len(messages))
	for _, m := range messages {
		seen[m.Ref()] = true
	}

	deadline := time.Now().Add(cmd.timeout)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if time.Now().After(deadline) {
				return nil // Timeout reached, exit silently
			}

			var fresh []pubsub.PendingMessage
			for _, m := range cmd.flags.Service.GetMessages(ctx, cmd.user) {
				if !seen[m.Ref()] {
					seen[m.Ref()] = true
					fresh = append(fresh, m)
				}
			}

			if err := cmd.printMessages(c.Root().Writer, fresh); err != nil {
				return err
			}
		}
	}
}

func (cmd *MsgCmd) runAck(ctx context.Context, c *cli.Command) error {
	var refs []pubsub.MessageRef

	switch {
	case cmd.ackAll:
		for _, m := range cmd.flags.Service.GetMessages(ctx, cmd.user) {
			refs = append(refs, m.Ref())
		}
	case cmd.topic != "" && c.NArg() > 0:
		for _, content := range c.Args().Slice() {
			refs = append(refs, pubsub.MessageRef{TopicName: cmd.topic, Content: content})
		}
	default:
		return fmt.Errorf("either --all or --topic with message contents is required")
	}

	if !cmd.flags.Service.AcknowledgeMessages(ctx, refs, cmd.user) {
		return fmt.Errorf("could not acknowledge messages")
	}

	printer.Ctx(ctx).Successf("Acknowledged %d message(s)", len(refs))
	return nil
}

func (cmd *MsgCmd) runPrune(ctx context.Context, _ *cli.Command) error {
	p := printer.Ctx(ctx)

	count, ok := cmd.flags.Service.PruneDelivered(ctx)
	if !ok {
		return fmt.Errorf("could not prune messages")
	}

	if count == 0 {
		p.Infof("No delivered messages to prune")
		return nil
	}

	p.Successf("Pruned %d message(s)", count)
	return nil
}

func (cmd *MsgCmd) readContent(c *cli.Command) (string, error) {
	switch {
	case c.NArg() >= 1:
		return c.Args().Get(0), nil
	case cmd.file != "":
		data, err := os.ReadFile(cmd.file)
		if err != nil {
			return "", fmt.Errorf("read file: %w", err)
		}
		return strings.TrimRight(string(data), "\n"), nil
	default:
		data, err := io.ReadAll(c.Root().Reader)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return strings.TrimRight(string(data), "\n"), nil
	}
}

func (cmd *MsgCmd) printMessages(w io.Writer, messages []pubsub.PendingMessage) error {
	enc := json.NewEncoder(w)
	for _, m := range messages {
		if err := enc.Encode(m); err != nil {
			return err
		}
	}
	return nil
}
