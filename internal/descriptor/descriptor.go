package descriptor

import (
	"fmt"
	"maps"
	"path/filepath"
	"reflect"
	"slices"
	"sort"
	"strings"
	"time"
)

// LogPaths are the destinations of a process' output. An empty
// Combined path disables the combined log.
type LogPaths struct {
	Out      string `json:"out" yaml:"out"`
	Err      string `json:"err" yaml:"err"`
	Combined string `json:"combined,omitempty" yaml:"combined,omitempty"`
}

// Descriptor is the validated launch configuration of one app.
// A Descriptor must not be modified once it has been handed out.
type Descriptor struct {
	Name            string            `json:"name" yaml:"name"`
	Cwd             string            `json:"cwd" yaml:"cwd"`
	Script          string            `json:"script" yaml:"script"`
	Interpreter     string            `json:"interpreter,omitempty" yaml:"interpreter,omitempty"`
	InterpreterArgs []string          `json:"interpreter_args,omitempty" yaml:"interpreter_args,omitempty"`
	Args            []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env             map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Instances       int               `json:"instances" yaml:"instances"`
	AutoRestart     bool              `json:"autorestart" yaml:"autorestart"`

	// MaxMemory is the RSS threshold in bytes. Zero disables it.
	MaxMemory uint64 `json:"max_memory,omitempty" yaml:"max_memory,omitempty"`

	Logs       LogPaths `json:"logs" yaml:"logs"`
	Timestamps bool     `json:"time" yaml:"time"`
	TimeFormat string   `json:"log_date_format,omitempty" yaml:"log_date_format,omitempty"`

	// KillTimeout, RestartDelay, MaxRestarts and MinUptime override the
	// supervisor defaults when non-zero.
	KillTimeout  time.Duration `json:"kill_timeout,omitempty" yaml:"kill_timeout,omitempty"`
	RestartDelay time.Duration `json:"restart_delay,omitempty" yaml:"restart_delay,omitempty"`
	MaxRestarts  int           `json:"max_restarts,omitempty" yaml:"max_restarts,omitempty"`
	MinUptime    time.Duration `json:"min_uptime,omitempty" yaml:"min_uptime,omitempty"`

	StopExitCodes []int `json:"stop_exit_codes,omitempty" yaml:"stop_exit_codes,omitempty"`
}

// Command returns the program and arguments to execute.
func (d *Descriptor) Command() (string, []string) {
	if d.Interpreter == "" {
		return d.Script, slices.Clone(d.Args)
	}

	args := make([]string, 0, len(d.InterpreterArgs)+len(d.Args)+1)
	args = append(args, d.InterpreterArgs...)
	args = append(args, d.Script)
	args = append(args, d.Args...)

	return d.Interpreter, args
}

// Environ merges the descriptor's overrides on top of base, which
// is in the form returned by os.Environ.
func (d *Descriptor) Environ(base []string) []string {
	env := make([]string, 0, len(base)+len(d.Env))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := d.Env[key]; ok {
			continue
		}
		env = append(env, kv)
	}

	keys := make([]string, 0, len(d.Env))
	for k := range d.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, d.Env[k]))
	}

	return env
}

// InstanceLogs returns the log destinations of the given instance.
// Apps with more than one instance get a `-<index>` suffix per file.
func (d *Descriptor) InstanceLogs(instance int) LogPaths {
	if d.Instances <= 1 {
		return d.Logs
	}

	return LogPaths{
		Out:      instancePath(d.Logs.Out, instance),
		Err:      instancePath(d.Logs.Err, instance),
		Combined: instancePath(d.Logs.Combined, instance),
	}
}

func instancePath(path string, instance int) string {
	if path == "" || path == DevNull {
		return path
	}

	ext := filepath.Ext(path)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(path, ext), instance, ext)
}

// IsCleanExit reports whether code is one of the app's stop exit codes.
// Without stop exit codes only 0 is clean.
func (d *Descriptor) IsCleanExit(code int) bool {
	if len(d.StopExitCodes) == 0 {
		return code == 0
	}
	return slices.Contains(d.StopExitCodes, code)
}

// Equal reports whether both descriptors describe the same app.
func (d *Descriptor) Equal(other *Descriptor) bool {
	if d == nil || other == nil {
		return d == other
	}

	return reflect.DeepEqual(d, other)
}

// RequiresRestart reports whether switching from d to other needs the
// running processes to be restarted. Memory threshold, autorestart and
// restart policy overrides are read live and can be swapped in place.
func (d *Descriptor) RequiresRestart(other *Descriptor) bool {
	if d == nil || other == nil {
		return true
	}

	return !reflect.DeepEqual(d.launchFields(), other.launchFields())
}

func (d *Descriptor) launchFields() Descriptor {
	c := *d
	c.Env = maps.Clone(d.Env)
	c.MaxMemory = 0
	c.AutoRestart = false
	c.RestartDelay = 0
	c.MaxRestarts = 0
	c.MinUptime = 0
	c.StopExitCodes = nil
	return c
}
