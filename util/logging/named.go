package logging

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// DecorateLogger names the logger of an fx module, so that every
// component of the module logs as e.g. "supervisor".
func DecorateLogger(name string) fx.Option {
	return fx.Decorate(func(log *zap.Logger) *zap.Logger {
		return log.Named(name)
	})
}
