package descriptor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/file"
	"go.uber.org/multierr"
)

// ValidateOptions control how relative paths are resolved.
type ValidateOptions struct {
	// BaseDir resolves relative cwd, env_file and log paths,
	// usually the directory of the ecosystem file.
	BaseDir string

	// LogDir holds the default out and error logs of apps
	// that do not configure them.
	LogDir string
}

// Validate turns a raw app configuration into a Descriptor. Any violation
// is reported as a *ConfigError naming the offending field. Validate does
// not touch the filesystem other than reading env_file.
func Validate(raw AppConfig, opts ValidateOptions) (*Descriptor, error) {
	name := strings.TrimSpace(raw.Name)
	if name == "" {
		return nil, newConfigError("", "name", ErrEmpty)
	}
	if strings.ContainsRune(name, filepath.Separator) {
		return nil, newConfigError(name, "name", fmt.Errorf("must not contain %q", filepath.Separator))
	}

	if strings.TrimSpace(raw.Script) == "" {
		return nil, newConfigError(name, "script", ErrEmpty)
	}

	instances := raw.Instances
	if instances == 0 {
		instances = 1
	}
	if instances < 1 {
		return nil, newConfigError(name, "instances", ErrNotPositive)
	}

	args, err := parseArgs(raw.Args)
	if err != nil {
		return nil, newConfigError(name, "args", err)
	}

	interpreterArgs, err := parseArgs(raw.InterpreterArgs)
	if err != nil {
		return nil, newConfigError(name, "interpreter_args", err)
	}

	cwd := resolve(opts.BaseDir, raw.Cwd)
	if cwd == "" {
		cwd = opts.BaseDir
	}

	env, err := mergeEnv(name, resolve(opts.BaseDir, raw.EnvFile), raw.Env)
	if err != nil {
		return nil, err
	}

	var maxMemory uint64
	if raw.MaxMemoryRestart != "" {
		if maxMemory, err = ParseSize(raw.MaxMemoryRestart); err != nil {
			return nil, newConfigError(name, "max_memory_restart", err)
		}
	}

	logs, err := resolveLogs(name, raw, opts)
	if err != nil {
		return nil, err
	}

	nonNegative := []struct {
		field string
		value int
	}{
		{"kill_timeout", raw.KillTimeout},
		{"exp_backoff_restart_delay", raw.ExpBackoffRestartDelay},
		{"min_uptime", raw.MinUptime},
		{"max_restarts", raw.MaxRestarts},
	}
	for _, d := range nonNegative {
		if d.value < 0 {
			return nil, newConfigError(name, d.field, ErrNegative)
		}
	}

	autoRestart := true
	if raw.AutoRestart != nil {
		autoRestart = *raw.AutoRestart
	}

	return &Descriptor{
		Name:            name,
		Cwd:             cwd,
		Script:          raw.Script,
		Interpreter:     raw.Interpreter,
		InterpreterArgs: interpreterArgs,
		Args:            args,
		Env:             env,
		Instances:       instances,
		AutoRestart:     autoRestart,
		MaxMemory:       maxMemory,
		Logs:            logs,
		Timestamps:      raw.Time,
		TimeFormat:      raw.LogDateFormat,
		KillTimeout:     millis(raw.KillTimeout),
		RestartDelay:    millis(raw.ExpBackoffRestartDelay),
		MaxRestarts:     raw.MaxRestarts,
		MinUptime:       millis(raw.MinUptime),
		StopExitCodes:   raw.StopExitCodes,
	}, nil
}

// ValidateAll validates every app and rejects duplicate names. All
// violations are returned, combined.
func ValidateAll(apps []AppConfig, opts ValidateOptions) ([]*Descriptor, error) {
	var errs error

	seen := make(map[string]struct{}, len(apps))
	descs := make([]*Descriptor, 0, len(apps))

	for _, app := range apps {
		desc, err := Validate(app, opts)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}

		if _, ok := seen[desc.Name]; ok {
			errs = multierr.Append(errs, newConfigError(desc.Name, "name", ErrDuplicate))
			continue
		}
		seen[desc.Name] = struct{}{}

		descs = append(descs, desc)
	}

	if errs != nil {
		return nil, errs
	}

	return descs, nil
}

func parseArgs(v any) ([]string, error) {
	switch args := v.(type) {
	case nil:
		return nil, nil
	case string:
		return shellquote.Split(args)
	case []string:
		return append([]string(nil), args...), nil
	case []any:
		out := make([]string, 0, len(args))
		for _, arg := range args {
			switch a := arg.(type) {
			case string:
				out = append(out, a)
			case int, int64, float64, bool:
				out = append(out, fmt.Sprint(a))
			default:
				return nil, fmt.Errorf("unsupported argument type %T", arg)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("must be a string or a list, got %T", v)
	}
}

func mergeEnv(name, envFile string, overrides map[string]string) (map[string]string, error) {
	env := make(map[string]string, len(overrides))

	if envFile != "" {
		b, err := file.Provider(envFile).ReadBytes()
		if err != nil {
			return nil, newConfigError(name, "env_file", err)
		}

		vars, err := dotenv.Parser().Unmarshal(b)
		if err != nil {
			return nil, newConfigError(name, "env_file", err)
		}

		for k, v := range vars {
			env[k] = fmt.Sprint(v)
		}
	}

	for k, v := range overrides {
		if k == "" || strings.ContainsRune(k, '=') {
			return nil, newConfigError(name, "env", fmt.Errorf("invalid variable name %q", k))
		}
		env[k] = v
	}

	return env, nil
}

func resolveLogs(name string, raw AppConfig, opts ValidateOptions) (LogPaths, error) {
	logs := LogPaths{
		Out:      resolve(opts.BaseDir, raw.OutFile),
		Err:      resolve(opts.BaseDir, raw.ErrorFile),
		Combined: resolve(opts.BaseDir, raw.LogFile),
	}

	if logs.Out == "" {
		logs.Out = filepath.Join(opts.LogDir, name+"-out.log")
	}
	if logs.Err == "" {
		logs.Err = filepath.Join(opts.LogDir, name+"-error.log")
	}

	fields := []struct {
		field string
		path  string
	}{
		{"out_file", logs.Out},
		{"error_file", logs.Err},
		{"log_file", logs.Combined},
	}

	for _, f := range fields {
		if f.path == "" {
			continue
		}
		if err := checkWritable(f.path); err != nil {
			return logs, newConfigError(name, f.field, err)
		}
	}

	return logs, nil
}

func resolve(base, path string) string {
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	if filepath.IsAbs(path) || base == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(base, path)
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
