package commands

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/postbox/internal/core/pubsub"
	"github.com/hay-kot/postbox/internal/core/validate"
	"github.com/hay-kot/postbox/internal/printer"
)

type TopicCmd struct {
	flags *Flags

	// ls flags
	lsUser  string
	lsName  string
	lsMatch string

	user    string
	private bool
	sponsor string
}

// NewTopicCmd creates a new topic command
func NewTopicCmd(flags *Flags) *TopicCmd {
	return &TopicCmd{flags: flags}
}

// Register adds the topic command to the application
func (cmd *TopicCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "topic",
		Usage: "Manage topics and their members",
		Commands: []*cli.Command{
			{
				Name:      "ls",
				Usage:     "List topics",
				UsageText: "postbox topic ls [--user <name> | --name <topic>] [--match <glob>]",
				Description: `Lists the topics a user belongs to, or the first topic with a given name.

--match narrows the result with a glob over topic names (e.g. news/**). Without
--user or --name it selects every topic whose name matches.`,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "topics the user is a member of", Destination: &cmd.lsUser},
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "first topic with this name", Destination: &cmd.lsName},
					&cli.StringFlag{Name: "match", Aliases: []string{"m"}, Usage: "glob over topic names", Destination: &cmd.lsMatch},
				},
				Action: cmd.runList,
			},
			{
				Name:      "create",
				Usage:     "Create a topic",
				UsageText: "postbox topic create --user <creator> [--private] <name>",
				Flags: []cli.Flag{
					userFlag(&cmd.user),
					&cli.BoolFlag{Name: "private", Aliases: []string{"p"}, Usage: "require a sponsor to join", Destination: &cmd.private},
				},
				Action: cmd.runCreate,
			},
			{
				Name:        "delete",
				Usage:       "Delete a topic",
				UsageText:   "postbox topic delete <name>",
				Description: "Removes the first topic with the given name. Pending messages are kept.",
				Action:      cmd.runDelete,
			},
			{
				Name:      "join",
				Usage:     "Add a member to a topic",
				UsageText: "postbox topic join --user <name> [--sponsor <member>] <topic>",
				Description: `Adds a user to a topic. Public topics are self-service; private topics need a
sponsor who is already a member.`,
				Flags: []cli.Flag{
					userFlag(&cmd.user),
					&cli.StringFlag{Name: "sponsor", Aliases: []string{"s"}, Usage: "existing member vouching for the user", Destination: &cmd.sponsor},
				},
				Action: cmd.runJoin,
			},
		},
	})

	return app
}

func (cmd *TopicCmd) runList(ctx context.Context, c *cli.Command) error {
	topics := cmd.flags.Service.ListTopics(ctx, pubsub.TopicFilter{
		User:  cmd.lsUser,
		Name:  cmd.lsName,
		Match: cmd.lsMatch,
	})

	if len(topics) == 0 {
		printer.Ctx(ctx).Infof("No topics found")
		return nil
	}

	w := tabwriter.NewWriter(c.Root().Writer, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tCREATOR\tPRIVATE\tMEMBERS")
	for _, t := range topics {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", t.Name, t.Creator, t.IsPrivate, strings.Join(t.Members, ","))
	}
	return w.Flush()
}

func (cmd *TopicCmd) runCreate(ctx context.Context, c *cli.Command) error {
	name := c.Args().First()
	if err := validate.TopicName(name); err != nil {
		return err
	}

	if !cmd.flags.Service.CreateTopic(ctx, name, cmd.user, cmd.private) {
		return fmt.Errorf("could not create topic %q", name)
	}

	printer.Ctx(ctx).Successf("Created topic %s", name)
	return nil
}

func (cmd *TopicCmd) runDelete(ctx context.Context, c *cli.Command) error {
	name := c.Args().First()
	if name == "" {
		return fmt.Errorf("topic name is required")
	}

	if !cmd.flags.Service.DeleteTopic(ctx, name) {
		return fmt.Errorf("could not delete topic %q", name)
	}

	printer.Ctx(ctx).Successf("Deleted topic %s", name)
	return nil
}

func (cmd *TopicCmd) runJoin(ctx context.Context, c *cli.Command) error {
	name := c.Args().First()
	if name == "" {
		return fmt.Errorf("topic name is required")
	}

	if !cmd.flags.Service.AddMember(ctx, name, cmd.user, cmd.sponsor) {
		return fmt.Errorf("could not add %s to %q", cmd.user, name)
	}

	printer.Ctx(ctx).Successf("Added %s to %s", cmd.user, name)
	return nil
}

// userFlag is the required acting user, shared by the topic and msg subcommands.
func userFlag(dest *string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:        "user",
		Aliases:     []string{"u"},
		Usage:       "acting username",
		Sources:     cli.EnvVars("POSTBOX_USER"),
		Required:    true,
		Destination: dest,
	}
}
