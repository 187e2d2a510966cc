package supervisor

import (
	"time"

	"github.com/lambda-feedback/shepherd/internal/logredirect"
	"github.com/lambda-feedback/shepherd/internal/memmon"
	"github.com/lambda-feedback/shepherd/internal/restart"
)

type Config struct {
	// StopTimeout is the grace period of apps without a kill_timeout
	StopTimeout time.Duration `conf:"stop_timeout"`

	Restart restart.Config `conf:"restart"`

	Memory memmon.Config `conf:"memory"`

	// Logs configures rotation of all app log files
	Logs logredirect.Rotation `conf:"logs"`
}

func DefaultConfig() Config {
	return Config{
		StopTimeout: 10 * time.Second,
		Restart:     restart.DefaultConfig(),
		Memory:      memmon.DefaultConfig(),
	}
}
