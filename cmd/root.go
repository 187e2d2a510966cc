package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/lambda-feedback/shepherd/config"
	"github.com/lambda-feedback/shepherd/internal/control"
	"github.com/lambda-feedback/shepherd/internal/descriptor"
	"github.com/lambda-feedback/shepherd/internal/shell"
	"github.com/lambda-feedback/shepherd/internal/supervisor"
	"github.com/lambda-feedback/shepherd/util/conf"
	"github.com/lambda-feedback/shepherd/util/logging"
)

// Exit codes of the CLI.
const (
	exitFailure  = 1
	exitConfig   = 2
	exitNotFound = 3
	exitSpawn    = 4
)

var (
	appName  = "shepherd"
	appUsage = `A process supervisor keeping long-running apps alive.`
	rootApp  = &cli.App{
		Name:            appName,
		Usage:           appUsage,
		HideHelpCommand: true,
		Flags: []cli.Flag{
			// general flags
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "set the log level. Options: debug, info, warn, error, panic, fatal.",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "set the log format. Options: production, development.",
				EnvVars: []string{"LOG_FORMAT"},
			},
			&cli.PathFlag{
				Name:    "config",
				Usage:   "path to a daemon config file in json or yaml format.",
				EnvVars: []string{"SHEPHERD_CONFIG"},
			},
			&cli.PathFlag{
				Name:    "socket",
				Usage:   "path of the control socket.",
				EnvVars: []string{"SHEPHERD_SOCKET"},
			},
		},
		Before: func(ctx *cli.Context) error {
			// create the logger
			log, err := createLogger(ctx)
			if err != nil {
				return err
			}

			// inject logger into cli context
			ctx.Context = logging.ContextWithLogger(ctx.Context, log)

			return nil
		},
		After: func(ctx *cli.Context) error {
			log, err := logging.LoggerFromContext(ctx.Context)
			if err != nil {
				return err
			}

			log.Sync()

			return nil
		},
	}
)

// cliMap maps flags to nested config keys.
var cliMap = map[string]string{
	"http-host": "http.host",
	"http-port": "http.port",
	"http-h2c":  "http.h2c",
	"watch":     "watch.enabled",
}

// loadConfig parses the config once all flags of a command are known.
// It is the Before hook of every command.
func loadConfig(ctx *cli.Context) error {
	log, err := logging.LoggerFromContext(ctx.Context)
	if err != nil {
		return err
	}

	// parse config using defaults, file, env and flags
	cfg, err := conf.Parse[config.Config](conf.ParseOptions{
		Cli:       ctx,
		CliMap:    cliMap,
		Defaults:  config.DefaultConfig(),
		EnvPrefix: config.EnvPrefix,
		FileName:  ctx.Path("config"),
		Log:       log,
	})
	if err != nil {
		return err
	}

	// inject the config into the cli context
	ctx.Context = conf.ContextWithConfig(ctx.Context, cfg)

	return nil
}

func init() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:               "version",
		Usage:              "print the version",
		DisableDefaultText: true,
	}
}

type ExecuteParams struct {
	Version  string
	Compiled time.Time
}

func Execute(params ExecuteParams) {
	rootApp.Version = params.Version
	rootApp.Compiled = params.Compiled

	run(context.Background(), os.Args)
}

func run(ctx context.Context, args []string) {
	err := rootApp.RunContext(ctx, args)

	// if app exited without error, return
	if err == nil {
		return
	}

	// the shell reports the exit code of the daemon
	if code, ok := shell.ExitCode(err); ok {
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "error: %s\n", err.Error())

	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case descriptor.IsConfigError(err), errors.Is(err, control.ErrConfig):
		return exitConfig
	case errors.Is(err, supervisor.ErrAppNotFound):
		return exitNotFound
	case errors.Is(err, control.ErrSpawn):
		return exitSpawn
	}

	return exitFailure
}

func createLogger(ctx *cli.Context) (*zap.Logger, error) {
	level := getLogLevelFromCLI(ctx)
	format := getLogFormatFromCLI(ctx)

	var config zap.Config
	if format == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
	}

	config.InitialFields = map[string]any{
		"app": appName,
	}

	config.Level = level

	return config.Build()
}

func getLogFormatFromCLI(ctx *cli.Context) string {
	format := ctx.String("log-format")
	if format != "" {
		return format
	}

	return "production"
}

func getLogLevelFromCLI(ctx *cli.Context) zap.AtomicLevel {
	lvl := ctx.String("log-level")

	if atom, err := zap.ParseAtomicLevel(lvl); err == nil {
		return atom
	}

	return zap.NewAtomicLevelAt(zap.InfoLevel)
}
