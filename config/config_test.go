package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lambda-feedback/shepherd/util/conf"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("SHEPHERD_HOME", "/var/lib/shepherd")

	config, err := conf.Parse[Config](conf.ParseOptions{
		Defaults:  DefaultConfig(),
		EnvPrefix: EnvPrefix,
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("/var/lib/shepherd", "shepherd.sock"), config.Control.Socket)
	assert.Equal(t, filepath.Join("/var/lib/shepherd", "logs"), config.LogDir)
	assert.False(t, config.Http.Enabled())
	assert.Equal(t, 10*time.Second, config.Supervisor.StopTimeout)
	assert.Equal(t, 10, config.Supervisor.Restart.MaxCrashes)
	assert.Equal(t, 5*time.Second, config.Supervisor.Memory.Interval)
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SHEPHERD_HTTP__PORT", "9615")
	t.Setenv("SHEPHERD_SUPERVISOR__RESTART__MAX_CRASHES", "3")
	t.Setenv("SHEPHERD_AUTH__KEY", "secret")

	config, err := conf.Parse[Config](conf.ParseOptions{
		Defaults:  DefaultConfig(),
		EnvPrefix: EnvPrefix,
	})
	require.NoError(t, err)

	assert.Equal(t, 9615, config.Http.Port)
	assert.Equal(t, 3, config.Supervisor.Restart.MaxCrashes)
	assert.Equal(t, "secret", config.Auth.Key)
}
