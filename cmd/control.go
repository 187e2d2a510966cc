package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/lambda-feedback/shepherd/config"
	"github.com/lambda-feedback/shepherd/internal/control"
	"github.com/lambda-feedback/shepherd/util/conf"
)

var (
	startCmd = &cli.Command{
		Name:      "start",
		Usage:     "Start all instances of an app.",
		ArgsUsage: "NAME",
		Before:    loadConfig,
		Action: nameAction(func(ctx context.Context, c *control.Client, name string) error {
			return c.Start(ctx, name)
		}),
	}
	stopCmd = &cli.Command{
		Name:      "stop",
		Usage:     "Gracefully stop all instances of an app.",
		ArgsUsage: "NAME",
		Before:    loadConfig,
		Action: nameAction(func(ctx context.Context, c *control.Client, name string) error {
			return c.Stop(ctx, name)
		}),
	}
	restartCmd = &cli.Command{
		Name:      "restart",
		Usage:     "Restart all instances of an app.",
		ArgsUsage: "NAME",
		Before:    loadConfig,
		Action: nameAction(func(ctx context.Context, c *control.Client, name string) error {
			return c.Restart(ctx, name)
		}),
	}
	statusCmd = &cli.Command{
		Name:      "status",
		Usage:     "Show the state of all apps, or of a single app.",
		ArgsUsage: "[NAME]",
		Before:    loadConfig,
		Action:    statusAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "the output format. Options: table, json, yaml.",
				Value:   "table",
			},
		},
	}
	reloadCmd = &cli.Command{
		Name:   "reload",
		Usage:  "Reload the ecosystem file of the daemon.",
		Before: loadConfig,
		Action: reloadAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "the output format. Options: table, json, yaml.",
				Value:   "table",
			},
		},
	}
)

// dial connects to the daemon of the configured socket.
func dial(ctx *cli.Context) (*control.Client, error) {
	cfg, err := conf.GetConfigFromContext[config.Config](ctx.Context)
	if err != nil {
		return nil, err
	}

	client, err := control.Dial(ctx.Context, cfg.Control.Socket)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon at %s: %w", cfg.Control.Socket, err)
	}

	return client, nil
}

func nameAction(call func(context.Context, *control.Client, string) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		name := ctx.Args().First()
		if name == "" {
			return errors.New("no app name given")
		}

		client, err := dial(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		if err := call(ctx.Context, client, name); err != nil {
			return err
		}

		snapshots, err := client.Status(ctx.Context, name)
		if err != nil {
			return err
		}

		return writeSnapshots(ctx.App.Writer, "table", snapshots)
	}
}

func statusAction(ctx *cli.Context) error {
	client, err := dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	snapshots, err := client.Status(ctx.Context, ctx.Args().First())
	if err != nil {
		return err
	}

	return writeSnapshots(ctx.App.Writer, ctx.String("output"), snapshots)
}

func reloadAction(ctx *cli.Context) error {
	client, err := dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	result, err := client.Reload(ctx.Context)
	if err != nil {
		return err
	}

	return writeReloadResult(ctx.App.Writer, ctx.String("output"), result)
}

func init() {
	rootApp.Commands = append(rootApp.Commands,
		startCmd,
		stopCmd,
		restartCmd,
		statusCmd,
		reloadCmd,
	)
}
