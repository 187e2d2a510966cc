package cmd

import (
	"errors"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/fx"

	"github.com/lambda-feedback/shepherd/app"
	"github.com/lambda-feedback/shepherd/app/daemon"
	"github.com/lambda-feedback/shepherd/config"
	"github.com/lambda-feedback/shepherd/util/conf"
)

var (
	daemonCmdDescription = `The daemon command loads the ecosystem file, starts every
app it declares and keeps them running. Crashed apps are
restarted with exponential backoff until they crash too
often, apps exceeding their memory limit are restarted
gracefully.

The daemon listens on the control socket for start, stop,
restart, status and reload requests and blocks until it
receives SIGINT or SIGTERM, stopping all apps on the way
out. SIGHUP reloads the ecosystem file.`
	daemonCmd = &cli.Command{
		Name:        "daemon",
		Usage:       "Run the supervisor.",
		Description: daemonCmdDescription,
		Before:      loadConfig,
		Action:      daemonAction,
		Flags: []cli.Flag{
			&cli.PathFlag{
				Name:    "ecosystem",
				Aliases: []string{"e"},
				Usage:   "the ecosystem file declaring the apps, in json or yaml format.",
				EnvVars: []string{"SHEPHERD_ECOSYSTEM"},
			},
			&cli.PathFlag{
				Name:    "log-dir",
				Usage:   "the directory for app logs without explicit paths.",
				EnvVars: []string{"SHEPHERD_LOG_DIR"},
			},
			&cli.StringFlag{
				Name:     "http-host",
				Usage:    "The host to listen on.",
				Category: "http",
			},
			&cli.IntFlag{
				Name:     "http-port",
				Usage:    "The port to serve status and metrics on. Disabled if zero.",
				Category: "http",
			},
			&cli.BoolFlag{
				Name:     "http-h2c",
				Usage:    "Enable HTTP/2 cleartext upgrade.",
				Category: "http",
			},
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "reload when the ecosystem file changes.",
			},
		},
	}
)

func daemonAction(ctx *cli.Context) error {
	cfg, err := conf.GetConfigFromContext[config.Config](ctx.Context)
	if err != nil {
		return err
	}

	if cfg.Ecosystem == "" {
		return errors.New("no ecosystem file given")
	}

	app, err := app.New(ctx)
	if err != nil {
		return err
	}

	// leave room for the slowest app to be killed
	stopTimeout := cfg.Supervisor.StopTimeout + 15*time.Second

	return app.Run(ctx.Context,
		fx.StopTimeout(stopTimeout),
		daemon.Module(cfg),
	)
}

func init() {
	rootApp.Commands = append(rootApp.Commands, daemonCmd)
}
