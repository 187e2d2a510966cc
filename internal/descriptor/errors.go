package descriptor

import (
	"errors"
	"fmt"
)

var (
	ErrEmpty        = errors.New("must not be empty")
	ErrNotPositive  = errors.New("must be greater than zero")
	ErrNegative     = errors.New("must not be negative")
	ErrDuplicate    = errors.New("duplicate app name")
	ErrNotDirectory = errors.New("not a directory")
	ErrNotWritable  = errors.New("not writable")
	ErrNotFound     = errors.New("does not exist")
)

// ConfigError describes an invalid descriptor field. It is returned before
// any process is spawned.
type ConfigError struct {
	// App is the name of the app the field belongs to, if known.
	App string

	// Field is the descriptor key of the offending field.
	Field string

	Err error
}

func (e *ConfigError) Error() string {
	if e.App == "" {
		return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
	}

	return fmt.Sprintf("app %q: invalid %s: %v", e.App, e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func newConfigError(app, field string, err error) *ConfigError {
	return &ConfigError{App: app, Field: field, Err: err}
}

// IsConfigError reports whether any error in err's chain is a ConfigError.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}
