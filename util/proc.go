package util

import (
	"errors"

	"golang.org/x/sys/unix"
)

// IsProcessAlive reports whether a process with the given pid exists.
// Zombies that were not yet reaped count as alive.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	err := unix.Kill(pid, 0)

	return err == nil || errors.Is(err, unix.EPERM)
}
