package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lambda-feedback/shepherd/internal/descriptor"
	"github.com/lambda-feedback/shepherd/internal/memmon"
	"github.com/lambda-feedback/shepherd/internal/metrics"
	"github.com/lambda-feedback/shepherd/internal/notify"
	"github.com/lambda-feedback/shepherd/internal/process"
	"github.com/lambda-feedback/shepherd/internal/restart"
)

type Params struct {
	fx.In

	Config Config

	Metrics  metrics.Collector `optional:"true"`
	Notifier notify.Notifier   `optional:"true"`
	Sampler  memmon.Sampler    `optional:"true"`

	Log *zap.Logger
}

// Supervisor owns the registry of apps and reconciles it with the
// desired set of descriptors.
type Supervisor struct {
	config   Config
	engine   *restart.Engine
	monitor  *memmon.Monitor
	metrics  metrics.Collector
	notifier notify.Notifier
	log      *zap.Logger

	mu     sync.RWMutex
	apps   map[string]*app
	closed bool

	// reloadMu serializes reloads
	reloadMu sync.Mutex
}

func New(params Params) *Supervisor {
	log := params.Log

	collector := params.Metrics
	if collector == nil {
		collector = metrics.Noop()
	}

	notifier := params.Notifier
	if notifier == nil {
		notifier = notify.Func(func(string, error) {})
	}

	return &Supervisor{
		config:   params.Config,
		engine:   restart.NewEngine(params.Config.Restart),
		monitor:  memmon.New(params.Config.Memory, params.Sampler, log),
		metrics:  collector,
		notifier: notifier,
		log:      log,
		apps:     make(map[string]*app),
	}
}

// Start starts every instance of the named app. Running instances are
// left untouched.
func (s *Supervisor) Start(ctx context.Context, name string) error {
	a, err := s.acquire(name)
	if err != nil {
		return err
	}
	defer a.mu.Unlock()

	return s.startLocked(ctx, a)
}

// Stop gracefully stops every instance of the named app.
func (s *Supervisor) Stop(ctx context.Context, name string) error {
	a, err := s.acquire(name)
	if err != nil {
		return err
	}
	defer a.mu.Unlock()

	return s.stopLocked(ctx, a)
}

// Restart stops and starts every instance of the named app. Stopped
// instances are started. The crash history of the app is cleared.
func (s *Supervisor) Restart(ctx context.Context, name string) error {
	a, err := s.acquire(name)
	if err != nil {
		return err
	}
	defer a.mu.Unlock()

	desc := a.desc.Load()
	if err := desc.CheckPaths(); err != nil {
		return err
	}

	grace := s.grace(desc)

	var errs error
	for _, inst := range a.list() {
		inst.history.Reset()

		err := inst.handle.Restart(ctx, grace)
		s.observeForced(a.name, inst)

		if err != nil {
			s.metrics.SpawnFailure(a.name)
			errs = multierr.Append(errs, err)
			continue
		}

		s.metrics.Restart(a.name, "manual")
	}

	return errs
}

// Status returns a snapshot of every instance of the named app.
func (s *Supervisor) Status(name string) ([]process.Snapshot, error) {
	s.mu.RLock()
	a, ok := s.apps[name]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrAppNotFound)
	}

	return a.snapshots(), nil
}

// StatusAll returns snapshots of all apps, ordered by name and instance.
func (s *Supervisor) StatusAll() []process.Snapshot {
	s.mu.RLock()
	apps := make([]*app, 0, len(s.apps))
	for _, a := range s.apps {
		apps = append(apps, a)
	}
	s.mu.RUnlock()

	var snapshots []process.Snapshot
	for _, a := range apps {
		snapshots = append(snapshots, a.snapshots()...)
	}

	sortSnapshots(snapshots)

	return snapshots
}

// Descriptor returns the current descriptor of the named app.
func (s *Supervisor) Descriptor(name string) (*descriptor.Descriptor, error) {
	s.mu.RLock()
	a, ok := s.apps[name]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrAppNotFound)
	}

	return a.desc.Load(), nil
}

// Shutdown stops all apps. Afterwards every operation fails with
// ErrShutdown, including operations that were waiting for an app.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	// let an in-flight reload settle, apps it removed are stopped by it
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	s.mu.RLock()
	apps := make([]*app, 0, len(s.apps))
	for _, a := range s.apps {
		apps = append(apps, a)
	}
	s.mu.RUnlock()

	s.log.Info("stopping all apps", zap.Int("apps", len(apps)))

	var g errgroup.Group
	for _, a := range apps {
		g.Go(func() error {
			a.mu.Lock()
			defer a.mu.Unlock()
			return s.closeLocked(ctx, a)
		})
	}

	return g.Wait()
}

// acquire looks up the named app and locks it.
func (s *Supervisor) acquire(name string) (*app, error) {
	s.mu.RLock()
	closed := s.closed
	a, ok := s.apps[name]
	s.mu.RUnlock()

	if closed {
		return nil, ErrShutdown
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrAppNotFound)
	}

	a.mu.Lock()

	// the app may have been removed or closed while waiting for the lock
	if a.evicted {
		a.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", name, ErrAppNotFound)
	}
	if a.closed {
		a.mu.Unlock()
		return nil, ErrShutdown
	}

	return a, nil
}

func (s *Supervisor) startLocked(ctx context.Context, a *app) error {
	if a.closed {
		return ErrShutdown
	}

	desc := a.desc.Load()
	if err := desc.CheckPaths(); err != nil {
		return err
	}

	var errs error
	for _, inst := range a.list() {
		// an operator start is a fresh start
		if inst.handle.State() == process.Stopped {
			inst.history.Reset()
		}

		if err := inst.handle.Start(ctx); err != nil {
			s.metrics.SpawnFailure(a.name)
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

func (s *Supervisor) stopLocked(ctx context.Context, a *app) error {
	return s.haltLocked(ctx, a, (*process.Handle).Stop)
}

// closeLocked stops a for good.
func (s *Supervisor) closeLocked(ctx context.Context, a *app) error {
	a.closed = true
	return s.haltLocked(ctx, a, (*process.Handle).Close)
}

func (s *Supervisor) haltLocked(
	ctx context.Context,
	a *app,
	halt func(h *process.Handle, ctx context.Context, grace time.Duration) error,
) error {
	grace := s.grace(a.desc.Load())

	var g errgroup.Group
	for _, inst := range a.list() {
		g.Go(func() error {
			err := halt(inst.handle, ctx, grace)
			if errors.Is(err, process.ErrShutdownTimeout) {
				s.metrics.ShutdownTimeout(a.name)
				return nil
			}
			return err
		})
	}

	return g.Wait()
}

// observeForced records a kill that happened during a restart.
func (s *Supervisor) observeForced(name string, inst *instance) {
	if errors.Is(inst.handle.LastError(), process.ErrShutdownTimeout) {
		s.metrics.ShutdownTimeout(name)
	}
}

func (s *Supervisor) grace(desc *descriptor.Descriptor) time.Duration {
	if desc.KillTimeout > 0 {
		return desc.KillTimeout
	}
	return s.config.StopTimeout
}

func (s *Supervisor) newApp(desc *descriptor.Descriptor) *app {
	a := &app{name: desc.Name}
	a.desc.Store(desc)
	s.setInstances(a, desc)
	return a
}

// setInstances replaces the instances of a with fresh handles for desc.
func (s *Supervisor) setInstances(a *app, desc *descriptor.Descriptor) {
	instances := make([]*instance, desc.Instances)

	for i := range instances {
		inst := &instance{history: restart.NewHistory()}
		inst.handle = process.New(process.Options{
			Descriptor: desc,
			Instance:   i,
			Rotation:   s.config.Logs,
			Hooks:      s.hooks(a, inst),
			Log:        s.log,
		})
		instances[i] = inst
	}

	a.instances.Store(&instances)
}
