package handler

import (
	"go.uber.org/fx"

	"github.com/lambda-feedback/shepherd/internal/supervisor"
)

func Module() fx.Option {
	return fx.Module("handler",
		fx.Provide(func(sv *supervisor.Supervisor) StatusProvider { return sv }),
		fx.Provide(NewStatusHandler),
		fx.Provide(NewAppsRoute),
		fx.Provide(NewAppRoute),
		fx.Provide(NewMetricsRoute),
		fx.Provide(NewHealthRoute),
	)
}
