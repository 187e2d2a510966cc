package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/lambda-feedback/shepherd/internal/control"
	"github.com/lambda-feedback/shepherd/internal/server"
	"github.com/lambda-feedback/shepherd/internal/supervisor"
	"github.com/lambda-feedback/shepherd/internal/watch"
	"github.com/lambda-feedback/shepherd/util/conf"
)

// EnvPrefix prefixes environment variables overriding the config,
// nested keys are separated by __, e.g. SHEPHERD_HTTP__PORT.
const EnvPrefix = "SHEPHERD_"

type Config struct {
	// LogLevel is the log level for the application
	LogLevel string `conf:"log_level"`

	// LogFormat is the log format for the application
	LogFormat string `conf:"log_format"`

	// Ecosystem is the path of the ecosystem file
	Ecosystem string `conf:"ecosystem"`

	// LogDir holds app logs without explicit paths
	LogDir string `conf:"log_dir"`

	// Control configures the control socket
	Control control.Config `conf:",squash"`

	Supervisor supervisor.Config `conf:"supervisor"`

	Http server.HttpConfig `conf:"http"`

	Auth AuthConfig `conf:"auth"`

	Watch watch.Config `conf:"watch"`
}

type AuthConfig struct {
	// Key is required in the api-key header of status requests if set
	Key string `conf:"key"`
}

// Home is the directory for runtime files of the daemon.
func Home() string {
	if dir := os.Getenv("SHEPHERD_HOME"); dir != "" {
		return dir
	}

	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".shepherd")
	}

	return filepath.Join(os.TempDir(), "shepherd")
}

func DefaultConfig() conf.DefaultConfig {
	home := Home()

	sv := supervisor.DefaultConfig()

	defaults := conf.DefaultConfig{
		"log_level":      "info",
		"log_format":     "production",
		"socket":         filepath.Join(home, "shepherd.sock"),
		"log_dir":        filepath.Join(home, "logs"),
		"http.host":      "127.0.0.1",
		"http.port":      0,
		"watch.debounce": 500 * time.Millisecond,
	}

	supervisorDefaults := conf.MergeDefaults("supervisor", conf.DefaultConfig{
		"stop_timeout":             sv.StopTimeout,
		"restart.base_delay":       sv.Restart.BaseDelay,
		"restart.max_delay":        sv.Restart.MaxDelay,
		"restart.stability_window": sv.Restart.StabilityWindow,
		"restart.flap_window":      sv.Restart.FlapWindow,
		"restart.max_crashes":      sv.Restart.MaxCrashes,
		"memory.interval":          sv.Memory.Interval,
	})

	for k, v := range supervisorDefaults {
		defaults[k] = v
	}

	return defaults
}
