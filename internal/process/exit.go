package process

import (
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"
)

// ExitEvent describes how a process terminated.
type ExitEvent struct {
	// Code is the exit code of the process
	Code *int `json:"code,omitempty" yaml:"code,omitempty"`

	// Signal is the signal that caused the process to exit
	Signal *int `json:"signal,omitempty" yaml:"signal,omitempty"`

	// At is the time the exit was observed
	At time.Time `json:"at" yaml:"at"`

	// Uptime is how long the process had been running
	Uptime time.Duration `json:"uptime" yaml:"uptime"`
}

func (e ExitEvent) String() string {
	switch {
	case e.Signal != nil:
		return fmt.Sprintf("signal %s", syscall.Signal(*e.Signal))
	case e.Code != nil:
		return fmt.Sprintf("exit code %d", *e.Code)
	default:
		return "unknown exit status"
	}
}

func getExitEvent(err error, at time.Time) ExitEvent {
	var exitStatus *int
	var signo *int

	// ErrWaitDelay means the process exited cleanly but
	// left its output pipes open
	if err == nil || errors.Is(err, exec.ErrWaitDelay) {
		code := 0
		exitStatus = &code
	}

	var exitError *exec.ExitError
	if errors.As(err, &exitError) {
		if status, ok := exitError.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				sig := int(status.Signal())
				signo = &sig
			} else {
				code := status.ExitStatus()
				exitStatus = &code
			}
		}
	}

	return ExitEvent{
		Code:   exitStatus,
		Signal: signo,
		At:     at,
	}
}
