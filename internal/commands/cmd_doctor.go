package commands

import (
	"context"
	"encoding/json"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/postbox/internal/commands/doctor"
	"github.com/hay-kot/postbox/internal/printer"
)

type DoctorCmd struct {
	flags  *Flags
	format string
	fix    bool
}

func NewDoctorCmd(flags *Flags) *DoctorCmd {
	return &DoctorCmd{flags: flags}
}

func (cmd *DoctorCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "doctor",
		Usage:       "Run health checks on the configuration and collections",
		UsageText:   "postbox doctor [--fix] [options]",
		Description: "Checks the configuration, verifies every collection can be read and finds pending messages left behind by deleted topics.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "format",
				Usage:       "output format (text, json)",
				Value:       "text",
				Destination: &cmd.format,
			},
			&cli.BoolFlag{
				Name:        "fix",
				Usage:       "remove orphan messages",
				Destination: &cmd.fix,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *DoctorCmd) run(ctx context.Context, c *cli.Command) error {
	report := doctor.Run(ctx, []doctor.Check{
		doctor.NewConfigCheck(cmd.flags.Config, cmd.flags.ConfigPath),
		doctor.NewStoreCheck(cmd.flags.Collections),
		doctor.NewOrphanCheck(cmd.flags.Collections, cmd.fix),
	})

	if cmd.format == "json" {
		enc := json.NewEncoder(c.Root().Writer)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printReport(printer.Ctx(ctx), report)
	}

	if !report.Healthy {
		return cli.Exit("", 1)
	}
	return nil
}

var statusLevels = map[doctor.Status]printer.Level{
	doctor.StatusPass: printer.LevelOK,
	doctor.StatusWarn: printer.LevelWarn,
	doctor.StatusFail: printer.LevelFail,
}

func printReport(p *printer.Printer, report doctor.Report) {
	for _, result := range report.Checks {
		p.Heading(result.Name)
		for _, item := range result.Items {
			p.Item(statusLevels[item.Status], item.Label, item.Detail)
		}
		p.Printf("")
	}

	sum := report.Summary
	p.Printf("Summary: %d passed, %d warnings, %d failed", sum.Passed, sum.Warned, sum.Failed)
	if sum.Fixable > 0 {
		p.Infof("Run 'postbox doctor --fix' to repair %d issue(s)", sum.Fixable)
	}
}
