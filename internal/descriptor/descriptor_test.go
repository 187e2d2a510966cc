package descriptor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescriptor_Environ_OverridesBase(t *testing.T) {
	desc := &Descriptor{Env: map[string]string{"B": "override", "C": "new"}}

	env := desc.Environ([]string{"A=1", "B=2"})

	assert.Equal(t, []string{"A=1", "B=override", "C=new"}, env)
}

func TestDescriptor_Command_WithoutInterpreter(t *testing.T) {
	desc := &Descriptor{Script: "/usr/bin/env", Args: []string{"true"}}

	cmd, args := desc.Command()

	assert.Equal(t, "/usr/bin/env", cmd)
	assert.Equal(t, []string{"true"}, args)
}

func TestDescriptor_RequiresRestart(t *testing.T) {
	base := &Descriptor{
		Name:      "svc",
		Script:    "sleep",
		Env:       map[string]string{"A": "1"},
		Instances: 1,
		MaxMemory: 100 << 20,
	}

	memory := *base
	memory.MaxMemory = 200 << 20
	assert.False(t, base.RequiresRestart(&memory))
	assert.False(t, base.Equal(&memory))

	env := *base
	env.Env = map[string]string{"A": "2"}
	assert.True(t, base.RequiresRestart(&env))

	same := *base
	assert.True(t, base.Equal(&same))
}

func TestDescriptor_CheckPaths(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manage.py"), nil, 0o644))

	desc := &Descriptor{Name: "svc", Cwd: dir, Interpreter: "python", Script: "manage.py"}
	assert.NoError(t, desc.CheckPaths())

	missingScript := *desc
	missingScript.Script = "missing.py"
	err := missingScript.CheckPaths()
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "script", cfgErr.Field)

	missingCwd := *desc
	missingCwd.Cwd = filepath.Join(dir, "missing")
	err = missingCwd.CheckPaths()
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "cwd", cfgErr.Field)

	bare := &Descriptor{Name: "svc", Cwd: dir, Script: "sleep"}
	assert.NoError(t, bare.CheckPaths())
}

func TestDescriptor_IsCleanExit(t *testing.T) {
	desc := &Descriptor{}
	assert.True(t, desc.IsCleanExit(0))
	assert.False(t, desc.IsCleanExit(1))

	desc.StopExitCodes = []int{2, 3}
	assert.False(t, desc.IsCleanExit(0))
	assert.True(t, desc.IsCleanExit(3))
}
