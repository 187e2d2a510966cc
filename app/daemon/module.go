package daemon

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/lambda-feedback/shepherd/config"
	"github.com/lambda-feedback/shepherd/handler"
	"github.com/lambda-feedback/shepherd/internal/control"
	"github.com/lambda-feedback/shepherd/internal/descriptor"
	"github.com/lambda-feedback/shepherd/internal/memmon"
	"github.com/lambda-feedback/shepherd/internal/metrics"
	"github.com/lambda-feedback/shepherd/internal/notify"
	"github.com/lambda-feedback/shepherd/internal/server"
	"github.com/lambda-feedback/shepherd/internal/supervisor"
	"github.com/lambda-feedback/shepherd/internal/watch"
)

func Module(config config.Config) fx.Option {
	options := []fx.Option{
		// provide the ecosystem file
		fx.Provide(func(log *zap.Logger) *descriptor.FileSource {
			return &descriptor.FileSource{
				Path:   config.Ecosystem,
				LogDir: config.LogDir,
				Log:    log.Named("ecosystem"),
			}
		}),
		fx.Provide(func(src *descriptor.FileSource) descriptor.Source { return src }),
		// provide metrics
		fx.Provide(metrics.NewPrometheus),
		fx.Provide(func(p *metrics.Prometheus) metrics.Collector { return p }),
		// provide flap notifications
		fx.Provide(func(log *zap.Logger) notify.Notifier { return notify.NewSentry(log.Named("notify")) }),
		// provide memory sampler
		fx.Provide(func() memmon.Sampler { return memmon.ProcessSampler{} }),
		// provide control socket, bound before any app is started
		control.Module(config.Control),
		// provide supervisor
		supervisor.Module(config.Supervisor),
		// provide ecosystem watcher
		watch.Module(config.Watch),
	}

	if config.Http.Enabled() {
		options = append(options,
			// provide handlers
			handler.Module(),
			// provide server
			server.Module(config.Http),
		)
	}

	return fx.Module("daemon", options...)
}
