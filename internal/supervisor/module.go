package supervisor

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/lambda-feedback/shepherd/internal/descriptor"
	"github.com/lambda-feedback/shepherd/util/logging"
)

type LifecycleParams struct {
	fx.In

	Supervisor *Supervisor
	Source     descriptor.Source
	Lifecycle  fx.Lifecycle
	Log        *zap.Logger
}

func Module(config Config) fx.Option {
	return fx.Module("supervisor",
		// rename logger for module
		logging.DecorateLogger("supervisor"),
		// provide config
		fx.Supply(config),
		// provide supervisor
		fx.Provide(New),
		// load the ecosystem on start, stop all apps on shutdown
		fx.Invoke(registerLifecycle),
	)
}

func registerLifecycle(params LifecycleParams) {
	sv := params.Supervisor
	log := params.Log

	params.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			descs, err := params.Source.Descriptors()
			if err != nil {
				return err
			}

			result, err := sv.Reload(ctx, descs)
			if err != nil {
				// single apps failing to start do not stop the daemon
				log.Error("failed to start apps", zap.Error(err))
			}
			if result != nil {
				log.Info("supervising apps", zap.Strings("apps", result.Added))
			}

			return nil
		},
		OnStop: func(ctx context.Context) error {
			return sv.Shutdown(ctx)
		},
	})
}
