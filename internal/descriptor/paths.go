package descriptor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// DevNull discards everything written to it.
const DevNull = "/dev/null"

// CheckPaths verifies that the working directory and the script exist.
// It is run right before spawning, since the filesystem may change
// between loading and starting an app.
func (d *Descriptor) CheckPaths() error {
	info, err := os.Stat(d.Cwd)
	if err != nil {
		return newConfigError(d.Name, "cwd", fmt.Errorf("%s: %w", d.Cwd, ErrNotFound))
	}
	if !info.IsDir() {
		return newConfigError(d.Name, "cwd", fmt.Errorf("%s: %w", d.Cwd, ErrNotDirectory))
	}

	// a bare command name without interpreter is looked up in PATH
	// at spawn time, failures there are spawn errors
	if d.Interpreter == "" && !strings.ContainsRune(d.Script, os.PathSeparator) {
		return nil
	}

	script := d.Script
	if !filepath.IsAbs(script) {
		script = filepath.Join(d.Cwd, script)
	}

	if _, err := os.Stat(script); err != nil {
		return newConfigError(d.Name, "script", fmt.Errorf("%s: %w", script, ErrNotFound))
	}

	return nil
}

// checkWritable verifies that path can be opened for appending, or
// created below its nearest existing ancestor. Nothing is created.
func checkWritable(path string) error {
	if path == DevNull {
		return nil
	}

	if info, err := os.Stat(path); err == nil {
		if info.IsDir() {
			return fmt.Errorf("%s: is a directory", path)
		}
		if err := unix.Access(path, unix.W_OK); err != nil {
			return fmt.Errorf("%s: %w", path, ErrNotWritable)
		}
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	dir := filepath.Dir(path)
	for {
		info, err := os.Stat(dir)
		if err == nil {
			if !info.IsDir() {
				return fmt.Errorf("%s: %w", dir, ErrNotDirectory)
			}
			if err := unix.Access(dir, unix.W_OK); err != nil {
				return fmt.Errorf("%s: %w", dir, ErrNotWritable)
			}
			return nil
		}

		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fmt.Errorf("%s: %w", dir, ErrNotFound)
		}
		dir = parent
	}
}
