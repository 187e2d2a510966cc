package supervisor

import (
	"context"

	"go.uber.org/zap"

	"github.com/lambda-feedback/shepherd/internal/memmon"
	"github.com/lambda-feedback/shepherd/internal/process"
	"github.com/lambda-feedback/shepherd/internal/restart"
)

func (s *Supervisor) hooks(a *app, inst *instance) process.Hooks {
	return process.Hooks{
		OnTransition: func(h *process.Handle, from, to process.State) {
			s.metrics.Transition(a.name, h.Instance(), from.String(), to.String())
		},
		OnRunning: func(ctx context.Context, h *process.Handle, pid int) {
			s.watchMemory(ctx, a, inst, pid)
		},
		OnExit: func(h *process.Handle, evt process.ExitEvent) {
			s.handleCrash(a, inst, evt)
		},
	}
}

// handleCrash asks the restart policy what to do with a crashed instance.
func (s *Supervisor) handleCrash(a *app, inst *instance, evt process.ExitEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.evicted || a.closed || !a.owns(inst) {
		return
	}

	s.metrics.Crash(a.name)

	// settled by a stop or start that held the lock first
	if inst.handle.State() != process.Crashed {
		return
	}

	desc := a.desc.Load()
	log := s.log.With(
		zap.String("app", a.name),
		zap.Int("instance", inst.handle.Instance()),
	)

	if !desc.AutoRestart {
		log.Info("autorestart disabled, leaving app stopped", zap.Stringer("exit", evt))
		inst.handle.Abandon(nil)
		return
	}

	policy := s.engine.Policy(restart.Overrides{
		BaseDelay:       desc.RestartDelay,
		MaxCrashes:      desc.MaxRestarts,
		StabilityWindow: desc.MinUptime,
	})

	d := s.engine.Decide(inst.history, policy, evt.Uptime)

	if d.Action == restart.GiveUp {
		log.Error("app is crash looping, giving up",
			zap.Int("crashes", d.Crashes),
			zap.Duration("window", policy.FlapWindow),
		)
		inst.handle.Abandon(d.Err)
		s.metrics.Flap(a.name)
		s.notifier.Notify(a.name, d.Err)
		return
	}

	log.Info("scheduling restart",
		zap.Duration("delay", d.Delay),
		zap.Int("crashes", d.Crashes),
	)

	inst.handle.ScheduleRestart(d.Delay, func() {
		s.restartDue(a, inst)
	})
}

// restartDue spawns an instance whose restart delay elapsed.
func (s *Supervisor) restartDue(a *app, inst *instance) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.evicted || a.closed || !a.owns(inst) {
		return
	}

	started, err := inst.handle.StartPending(context.Background())
	if err != nil {
		s.log.Error("failed to restart app",
			zap.String("app", a.name),
			zap.Int("instance", inst.handle.Instance()),
			zap.Error(err),
		)
		s.metrics.SpawnFailure(a.name)
		return
	}

	if started {
		s.metrics.Restart(a.name, "crash")
	}
}

// watchMemory samples a running instance and restarts it once it
// exceeds the memory limit of its app. Memory restarts are not crashes.
func (s *Supervisor) watchMemory(ctx context.Context, a *app, inst *instance, pid int) {
	rss, exceeded := s.monitor.Watch(ctx, memmon.Target{
		PID: pid,
		Threshold: func() uint64 {
			return a.desc.Load().MaxMemory
		},
		Record: func(rss uint64) {
			inst.handle.RecordMemory(rss)
			s.metrics.Memory(a.name, inst.handle.Instance(), rss)
		},
	})
	if !exceeded {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// the run ended while waiting for the lock
	if ctx.Err() != nil || a.evicted || a.closed || !a.owns(inst) {
		return
	}

	desc := a.desc.Load()

	s.log.Warn("restarting app over its memory limit",
		zap.String("app", a.name),
		zap.Int("instance", inst.handle.Instance()),
		zap.Uint64("rss", rss),
		zap.Uint64("limit", desc.MaxMemory),
	)

	err := inst.handle.Restart(context.Background(), s.grace(desc))
	s.observeForced(a.name, inst)

	if err != nil {
		s.log.Error("failed to restart app", zap.String("app", a.name), zap.Error(err))
		s.metrics.SpawnFailure(a.name)
		return
	}

	s.metrics.Restart(a.name, "memory")
}
