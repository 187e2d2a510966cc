package control

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/lambda-feedback/shepherd/internal/descriptor"
	"github.com/lambda-feedback/shepherd/internal/supervisor"
	"github.com/lambda-feedback/shepherd/util/logging"
)

type ServerParams struct {
	fx.In

	Config    Config
	API       *API
	Lifecycle fx.Lifecycle
	Log       *zap.Logger
}

func Module(config Config) fx.Option {
	return fx.Module("control",
		// rename logger for module
		logging.DecorateLogger("control"),
		// provide config
		fx.Supply(config),
		// provide api
		fx.Provide(func(sv *supervisor.Supervisor, src descriptor.Source, log *zap.Logger) *API {
			return NewAPI(sv, src, log)
		}),
		// provide server
		fx.Provide(NewLifecycleServer),
		// invoke server
		fx.Invoke(func(*Server) {}),
	)
}
