package watch

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/lambda-feedback/shepherd/internal/descriptor"
	"github.com/lambda-feedback/shepherd/internal/supervisor"
	"github.com/lambda-feedback/shepherd/util/logging"
)

type WatcherParams struct {
	fx.In

	Config     Config
	Source     *descriptor.FileSource
	Supervisor *supervisor.Supervisor
	Lifecycle  fx.Lifecycle
	Log        *zap.Logger
}

func Module(config Config) fx.Option {
	return fx.Module("watch",
		// rename logger for module
		logging.DecorateLogger("watch"),
		// provide config
		fx.Supply(config),
		// provide watcher
		fx.Provide(NewLifecycleWatcher),
		// invoke watcher
		fx.Invoke(func(*Watcher) {}),
	)
}

func NewLifecycleWatcher(params WatcherParams) (*Watcher, error) {
	w, err := New(Options{
		Config: params.Config,
		Path:   params.Source.Path,
		Reload: func(ctx context.Context) error {
			_, err := params.Supervisor.ReloadSource(ctx, params.Source)
			return err
		},
		Log: params.Log,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	params.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if err := w.Run(ctx); err != nil {
					params.Log.Error("watcher stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})

	return w, nil
}
