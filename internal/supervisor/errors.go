package supervisor

import "errors"

var (
	// ErrAppNotFound is returned for names that are not in the registry
	ErrAppNotFound = errors.New("app not found")

	// ErrShutdown is returned once the supervisor is shutting down
	ErrShutdown = errors.New("supervisor is shutting down")
)
