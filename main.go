package main

import (
	"log"
	"os"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/lambda-feedback/shepherd/cmd"
	"github.com/lambda-feedback/shepherd/util"
)

var Version string
var Buildtime string
var Commit string

func main() {
	version := "local"
	if Version != "" {
		version = Version
	}

	if err := initSentry(version); err != nil {
		log.Fatalf("sentry init failed: %s", err)
	}

	// flush crash reports of apps before the daemon exits
	defer sentry.Flush(2 * time.Second)

	compiled, _ := time.Parse(time.RFC3339, Buildtime)

	cmd.Execute(cmd.ExecuteParams{
		Version:  version,
		Compiled: compiled,
	})
}

// initSentry enables flap notifications if SENTRY_DSN is set. Events are
// tagged with the host, since every host runs its own daemon.
func initSentry(version string) error {
	dsn := os.Getenv("SENTRY_DSN")
	if dsn == "" {
		return nil
	}

	environment := os.Getenv("SENTRY_ENVIRONMENT")
	if environment == "" {
		environment = "local"
	}

	release := Commit
	if release == "" {
		release = version
	}

	host, _ := os.Hostname()

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Debug:       util.Truthy(os.Getenv("SENTRY_DEBUG")),
		Environment: environment,
		Release:     release,
		ServerName:  host,
	})
	if err != nil {
		return err
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("component", "shepherd-daemon")
		scope.SetTag("version", version)
	})

	return nil
}
