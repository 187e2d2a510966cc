package control

import (
	"context"

	"go.uber.org/zap"

	"github.com/lambda-feedback/shepherd/internal/descriptor"
	"github.com/lambda-feedback/shepherd/internal/process"
	"github.com/lambda-feedback/shepherd/internal/supervisor"
)

// Namespace is the JSON-RPC namespace of the control API.
const Namespace = "supervisor"

// Controller is the part of the supervisor exposed over the control API.
type Controller interface {
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	Restart(ctx context.Context, name string) error
	Status(name string) ([]process.Snapshot, error)
	StatusAll() []process.Snapshot
	Reload(ctx context.Context, descs []*descriptor.Descriptor) (*supervisor.ReloadResult, error)
}

// API is registered as the "supervisor" JSON-RPC service. Exported methods
// are callable as supervisor_<method>.
//
// Operations outlive the request: a client hanging up does not abort a
// stop or restart half way.
type API struct {
	controller Controller
	source     descriptor.Source
	log        *zap.Logger
}

func NewAPI(controller Controller, source descriptor.Source, log *zap.Logger) *API {
	return &API{
		controller: controller,
		source:     source,
		log:        log,
	}
}

func (a *API) Start(ctx context.Context, name string) error {
	a.log.Debug("start requested", zap.String("app", name))
	return toAPIError(a.controller.Start(context.WithoutCancel(ctx), name))
}

func (a *API) Stop(ctx context.Context, name string) error {
	a.log.Debug("stop requested", zap.String("app", name))
	return toAPIError(a.controller.Stop(context.WithoutCancel(ctx), name))
}

func (a *API) Restart(ctx context.Context, name string) error {
	a.log.Debug("restart requested", zap.String("app", name))
	return toAPIError(a.controller.Restart(context.WithoutCancel(ctx), name))
}

// Status returns the instances of the named app, or of all apps if name
// is empty.
func (a *API) Status(ctx context.Context, name string) ([]process.Snapshot, error) {
	if name == "" {
		return a.controller.StatusAll(), nil
	}

	snapshots, err := a.controller.Status(name)
	if err != nil {
		return nil, toAPIError(err)
	}

	return snapshots, nil
}

// Reload reads the ecosystem file again and reconciles the registry.
func (a *API) Reload(ctx context.Context) (*supervisor.ReloadResult, error) {
	a.log.Info("reload requested")

	descs, err := a.source.Descriptors()
	if err != nil {
		return nil, toAPIError(err)
	}

	result, err := a.controller.Reload(context.WithoutCancel(ctx), descs)
	if err != nil {
		return nil, toAPIError(err)
	}

	return result, nil
}
