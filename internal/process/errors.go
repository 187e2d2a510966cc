package process

import (
	"errors"
	"fmt"
)

var (
	// ErrShutdownTimeout is recorded when a process ignored the graceful
	// termination signal for longer than its grace period and was killed.
	ErrShutdownTimeout = errors.New("shutdown timeout")

	// ErrClosed is returned when a closed handle is asked to spawn.
	ErrClosed = errors.New("handle closed")
)

// SpawnError is returned when the OS refused to launch a process.
// Spawn errors are never retried automatically.
type SpawnError struct {
	Name string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn %s: %v", e.Name, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// CrashError records an unexpected exit of a running process.
type CrashError struct {
	Name string
	Exit ExitEvent
}

func (e *CrashError) Error() string {
	return fmt.Sprintf("%s crashed: %s", e.Name, e.Exit)
}
