package supervisor

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lambda-feedback/shepherd/internal/descriptor"
)

// ReloadResult lists the apps affected by a reload.
type ReloadResult struct {
	// Added apps were started
	Added []string `json:"added" yaml:"added"`

	// Removed apps were stopped and dropped from the registry
	Removed []string `json:"removed" yaml:"removed"`

	// Restarted apps had launch parameters changed
	Restarted []string `json:"restarted" yaml:"restarted"`

	// Updated apps took over live parameters without a restart
	Updated []string `json:"updated" yaml:"updated"`

	Unchanged []string `json:"unchanged" yaml:"unchanged"`
}

type change struct {
	app     *app
	desc    *descriptor.Descriptor
	restart bool
}

// Reload reconciles the registry with descs. New apps are started,
// missing apps are stopped and removed, changed apps are restarted or
// updated in place, and unchanged apps are left alone. Errors of single
// apps do not abort the reload.
func (s *Supervisor) Reload(ctx context.Context, descs []*descriptor.Descriptor) (*ReloadResult, error) {
	wanted := make(map[string]*descriptor.Descriptor, len(descs))
	for _, d := range descs {
		if _, ok := wanted[d.Name]; ok {
			return nil, &descriptor.ConfigError{App: d.Name, Field: "name", Err: descriptor.ErrDuplicate}
		}
		wanted[d.Name] = d
	}

	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	result := &ReloadResult{}

	var (
		added   []*app
		removed []*app
		changes []change
	)

	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return nil, ErrShutdown
	}

	for _, d := range descs {
		a, ok := s.apps[d.Name]
		if !ok {
			a = s.newApp(d)
			s.apps[d.Name] = a
			added = append(added, a)
			result.Added = append(result.Added, d.Name)
			continue
		}

		cur := a.desc.Load()
		if cur.Equal(d) {
			result.Unchanged = append(result.Unchanged, d.Name)
			continue
		}

		c := change{app: a, desc: d, restart: cur.RequiresRestart(d)}
		if c.restart {
			result.Restarted = append(result.Restarted, d.Name)
		} else {
			result.Updated = append(result.Updated, d.Name)
		}
		changes = append(changes, c)
	}

	for name, a := range s.apps {
		if _, ok := wanted[name]; !ok {
			delete(s.apps, name)
			removed = append(removed, a)
			result.Removed = append(result.Removed, name)
		}
	}

	s.mu.Unlock()

	var (
		mu   sync.Mutex
		errs error
	)

	record := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		errs = multierr.Append(errs, err)
	}

	var g errgroup.Group

	for _, a := range added {
		g.Go(func() error {
			a.mu.Lock()
			defer a.mu.Unlock()
			record(s.startLocked(ctx, a))
			return nil
		})
	}

	for _, a := range removed {
		g.Go(func() error {
			a.mu.Lock()
			defer a.mu.Unlock()
			record(s.stopLocked(ctx, a))
			a.evicted = true
			s.metrics.Forget(a.name)
			return nil
		})
	}

	for _, c := range changes {
		g.Go(func() error {
			record(s.apply(ctx, c))
			return nil
		})
	}

	_ = g.Wait()

	sort.Strings(result.Removed)

	s.log.Info("reloaded apps",
		zap.Strings("added", result.Added),
		zap.Strings("removed", result.Removed),
		zap.Strings("restarted", result.Restarted),
		zap.Strings("updated", result.Updated),
	)

	return result, errs
}

func (s *Supervisor) apply(ctx context.Context, c change) error {
	a := c.app

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrShutdown
	}

	if !c.restart {
		a.desc.Store(c.desc)
		for _, inst := range a.list() {
			inst.handle.SetDescriptor(c.desc)
		}
		return nil
	}

	// a broken descriptor must not take the running app down
	if err := c.desc.CheckPaths(); err != nil {
		return err
	}

	if err := s.stopLocked(ctx, a); err != nil {
		return err
	}

	a.desc.Store(c.desc)
	s.setInstances(a, c.desc)

	return s.startLocked(ctx, a)
}

// ReloadSource reads the desired descriptors from src and reloads. An
// invalid source leaves the registry untouched.
func (s *Supervisor) ReloadSource(ctx context.Context, src descriptor.Source) (*ReloadResult, error) {
	descs, err := src.Descriptors()
	if err != nil {
		return nil, err
	}

	return s.Reload(ctx, descs)
}
