package control

import (
	"errors"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/lambda-feedback/shepherd/internal/descriptor"
	"github.com/lambda-feedback/shepherd/internal/process"
	"github.com/lambda-feedback/shepherd/internal/supervisor"
)

// JSON-RPC error codes of the control API. Errors without a category use
// the generic server error code -32000.
const (
	CodeConfig   = -32010
	CodeSpawn    = -32011
	CodeNotFound = -32012
	CodeShutdown = -32013
)

// ErrConfig and ErrSpawn match remote errors of the respective category.
var (
	ErrConfig = errors.New("invalid configuration")
	ErrSpawn  = errors.New("failed to spawn process")
)

// apiError attaches a JSON-RPC code to an error returned by the API.
type apiError struct {
	code int
	err  error
}

func (e *apiError) Error() string {
	return e.err.Error()
}

func (e *apiError) ErrorCode() int {
	return e.code
}

func (e *apiError) Unwrap() error {
	return e.err
}

func toAPIError(err error) error {
	if err == nil {
		return nil
	}

	var spawnErr *process.SpawnError

	switch {
	case descriptor.IsConfigError(err):
		return &apiError{code: CodeConfig, err: err}
	case errors.As(err, &spawnErr):
		return &apiError{code: CodeSpawn, err: err}
	case errors.Is(err, supervisor.ErrAppNotFound):
		return &apiError{code: CodeNotFound, err: err}
	case errors.Is(err, supervisor.ErrShutdown), errors.Is(err, process.ErrClosed):
		return &apiError{code: CodeShutdown, err: err}
	}

	return err
}

// RemoteError is an error returned by the daemon.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Is matches the sentinel error of the error's category.
func (e *RemoteError) Is(target error) bool {
	switch e.Code {
	case CodeConfig:
		return target == ErrConfig
	case CodeSpawn:
		return target == ErrSpawn
	case CodeNotFound:
		return target == supervisor.ErrAppNotFound
	case CodeShutdown:
		return target == supervisor.ErrShutdown
	}
	return false
}

func fromRPCError(err error) error {
	if err == nil {
		return nil
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return &RemoteError{Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
	}

	return err
}
