package notify

import (
	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

// Notifier alerts operators about conditions that need intervention.
type Notifier interface {
	Notify(app string, err error)
}

// Sentry reports to the current sentry hub. Without a configured
// client the hub drops events.
type Sentry struct {
	hub *sentry.Hub
	log *zap.Logger
}

func NewSentry(log *zap.Logger) *Sentry {
	return &Sentry{
		hub: sentry.CurrentHub(),
		log: log,
	}
}

func (s *Sentry) Notify(app string, err error) {
	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("app", app)
		scope.SetLevel(sentry.LevelError)

		if id := s.hub.CaptureException(err); id != nil {
			s.log.Debug("reported to sentry",
				zap.String("app", app),
				zap.String("event_id", string(*id)),
			)
		}
	})
}

// Func adapts a function to a Notifier.
type Func func(app string, err error)

func (f Func) Notify(app string, err error) {
	f(app, err)
}
