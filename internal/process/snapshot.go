package process

import "time"

// Snapshot is a point in time view of a Handle.
type Snapshot struct {
	Name      string        `json:"name" yaml:"name"`
	Instance  int           `json:"instance" yaml:"instance"`
	State     State         `json:"state" yaml:"state"`
	PID       int           `json:"pid,omitempty" yaml:"pid,omitempty"`
	StartedAt *time.Time    `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	Uptime    time.Duration `json:"uptime" yaml:"uptime"`
	Restarts  int           `json:"restarts" yaml:"restarts"`

	// Memory is the last sampled resident set size in bytes
	Memory uint64 `json:"memory" yaml:"memory"`

	LastExit  *ExitEvent `json:"last_exit,omitempty" yaml:"last_exit,omitempty"`
	LastError string     `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	RunID     string     `json:"run_id,omitempty" yaml:"run_id,omitempty"`
}
