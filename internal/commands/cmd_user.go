package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/postbox/internal/core/validate"
	"github.com/hay-kot/postbox/internal/printer"
)

type UserCmd struct {
	flags *Flags
}

// NewUserCmd creates a new user command
func NewUserCmd(flags *Flags) *UserCmd {
	return &UserCmd{flags: flags}
}

// Register adds the user command to the application
func (cmd *UserCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "user",
		Usage: "Manage registered users",
		Commands: []*cli.Command{
			{
				Name:      "ls",
				Usage:     "List users",
				UsageText: "postbox user ls",
				Action:    cmd.runList,
			},
			{
				Name:        "create",
				Usage:       "Register a user",
				UsageText:   "postbox user create <username>",
				Description: "Registers username with the next free numeric id.",
				Action:      cmd.runCreate,
			},
		},
	})

	return app
}

func (cmd *UserCmd) runList(ctx context.Context, c *cli.Command) error {
	users := cmd.flags.Service.ListUsers(ctx)
	if len(users) == 0 {
		printer.Ctx(ctx).Infof("No users found")
		return nil
	}

	w := tabwriter.NewWriter(c.Root().Writer, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tUSERNAME")
	for _, u := range users {
		_, _ = fmt.Fprintf(w, "%d\t%s\n", u.ID, u.Username)
	}
	return w.Flush()
}

func (cmd *UserCmd) runCreate(ctx context.Context, c *cli.Command) error {
	username := c.Args().First()
	if err := validate.Username(username); err != nil {
		return err
	}

	if !cmd.flags.Service.CreateUser(ctx, username) {
		return fmt.Errorf("could not create user %q", username)
	}

	printer.Ctx(ctx).Successf("Created user %s", username)
	return nil
}
