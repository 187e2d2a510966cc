package descriptor

// AppConfig is the raw, deserialized form of one entry of the `apps` list
// of an ecosystem file. It is turned into a Descriptor by Validate.
type AppConfig struct {
	// Name is the unique key of the app
	Name string `conf:"name"`

	// Script is the executable, or the script passed to the interpreter
	Script string `conf:"script"`

	// Interpreter is the optional launcher for Script
	Interpreter string `conf:"interpreter"`

	// InterpreterArgs are passed to the interpreter before Script.
	// Either a list of strings or a shell-quoted string.
	InterpreterArgs any `conf:"interpreter_args"`

	// Args are passed to Script. Either a list of strings
	// or a shell-quoted string.
	Args any `conf:"args"`

	// Cwd is the working directory of the process
	Cwd string `conf:"cwd"`

	// Env contains environment variable overrides
	Env map[string]string `conf:"env"`

	// EnvFile is a dotenv file loaded beneath Env
	EnvFile string `conf:"env_file"`

	// Instances is the number of concurrent copies. Zero means one.
	Instances int `conf:"instances"`

	// AutoRestart enables restarts after a crash. Absent means true.
	AutoRestart *bool `conf:"autorestart"`

	// Watch is accepted for compatibility and ignored.
	Watch any `conf:"watch"`

	// MaxMemoryRestart is the resident memory threshold, e.g. "1G"
	MaxMemoryRestart string `conf:"max_memory_restart"`

	ErrorFile string `conf:"error_file"`
	OutFile   string `conf:"out_file"`
	LogFile   string `conf:"log_file"`

	// Time prefixes every log line with its write time
	Time bool `conf:"time"`

	// LogDateFormat is the Go time layout of the line prefix
	LogDateFormat string `conf:"log_date_format"`

	// KillTimeout is the grace period in milliseconds
	KillTimeout int `conf:"kill_timeout"`

	// ExpBackoffRestartDelay is the base restart delay in milliseconds
	ExpBackoffRestartDelay int `conf:"exp_backoff_restart_delay"`

	// MaxRestarts is the number of crashes tolerated within the flap window
	MaxRestarts int `conf:"max_restarts"`

	// MinUptime is the stability window in milliseconds
	MinUptime int `conf:"min_uptime"`

	// StopExitCodes are exit codes treated as a clean completion
	StopExitCodes []int `conf:"stop_exit_codes"`
}
