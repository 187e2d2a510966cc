package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/lambda-feedback/shepherd/config"
	"github.com/lambda-feedback/shepherd/internal/descriptor"
	"github.com/lambda-feedback/shepherd/internal/shell"
	"github.com/lambda-feedback/shepherd/util/conf"
	"github.com/lambda-feedback/shepherd/util/logging"
)

var (
	validateCmdDescription = `The validate command checks an ecosystem file without
contacting the daemon. Every problem is reported, not just
the first one. The exit code is 2 if the file is invalid.`
	validateCmd = &cli.Command{
		Name:        "validate",
		Usage:       "Validate an ecosystem file.",
		ArgsUsage:   "FILE",
		Description: validateCmdDescription,
		Before:      loadConfig,
		Action:      validateAction,
	}
)

func validateAction(ctx *cli.Context) error {
	path := ctx.Args().First()
	if path == "" {
		return errors.New("no ecosystem file given")
	}

	log, err := logging.LoggerFromContext(ctx.Context)
	if err != nil {
		return err
	}

	cfg, err := conf.GetConfigFromContext[config.Config](ctx.Context)
	if err != nil {
		return err
	}

	src := &descriptor.FileSource{
		Path:   path,
		LogDir: cfg.LogDir,
		Log:    log,
	}

	descs, err := src.Descriptors()

	// paths are checked again right before every start
	for _, d := range descs {
		err = multierr.Append(err, d.CheckPaths())
	}

	if err != nil {
		for _, e := range multierr.Errors(err) {
			fmt.Fprintf(ctx.App.ErrWriter, "%s\n", e)
		}
		return shell.NewExitError(exitCode(err))
	}

	fmt.Fprintf(ctx.App.Writer, "%s: %d apps ok\n", filepath.Base(path), len(descs))

	return nil
}

func init() {
	rootApp.Commands = append(rootApp.Commands, validateCmd)
}
