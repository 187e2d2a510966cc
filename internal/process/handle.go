package process

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lambda-feedback/shepherd/internal/descriptor"
	"github.com/lambda-feedback/shepherd/internal/logredirect"
)

const (
	// defaultWaitDelay bounds how long output is drained after exit,
	// in case a grandchild keeps the pipes open
	defaultWaitDelay = time.Second

	// killTimeout bounds the wait for a process after SIGKILL
	killTimeout = 5 * time.Second
)

// Hooks observe a handle. OnRunning and OnExit are called without any
// handle lock held.
type Hooks struct {
	// OnTransition is called on every state change, in order, while the
	// handle is locked. It must not call back into the handle.
	OnTransition func(h *Handle, from, to State)

	// OnRunning is called in a new goroutine once a process is alive.
	// ctx is cancelled as soon as the handle leaves Running.
	OnRunning func(ctx context.Context, h *Handle, pid int)

	// OnExit is called when a process exits without a stop request
	// and the handle transitioned to Crashed
	OnExit func(h *Handle, evt ExitEvent)
}

// Options configure a Handle.
type Options struct {
	Descriptor *descriptor.Descriptor

	// Instance is the index of this copy of the app
	Instance int

	// Rotation configures the log files of the handle
	Rotation logredirect.Rotation

	Hooks Hooks

	// WaitDelay bounds how long output is drained after exit
	WaitDelay time.Duration

	Log *zap.Logger
}

// Handle owns the lifecycle of one instance of an app. All methods are
// safe for concurrent use.
type Handle struct {
	name      string
	instance  int
	desc      atomic.Pointer[descriptor.Descriptor]
	hooks     Hooks
	rotation  logredirect.Rotation
	waitDelay time.Duration
	log       *zap.Logger

	mu           sync.Mutex
	state        State
	proc         *proc
	stopping     bool
	runCancel    context.CancelFunc
	redirector   *logredirect.Redirector
	restartTimer *time.Timer
	restarts     int
	lastExit     *ExitEvent
	lastErr      error
	memory       uint64
	runID        string

	// closed handles never spawn again
	closed bool
}

func New(opts Options) *Handle {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	waitDelay := opts.WaitDelay
	if waitDelay <= 0 {
		waitDelay = defaultWaitDelay
	}

	h := &Handle{
		name:      opts.Descriptor.Name,
		instance:  opts.Instance,
		hooks:     opts.Hooks,
		rotation:  opts.Rotation,
		waitDelay: waitDelay,
		log: log.With(
			zap.String("app", opts.Descriptor.Name),
			zap.Int("instance", opts.Instance),
		),
	}

	h.desc.Store(opts.Descriptor)

	return h
}

func (h *Handle) Name() string {
	return h.name
}

func (h *Handle) Instance() int {
	return h.instance
}

// Descriptor returns the current descriptor of the handle.
func (h *Handle) Descriptor() *descriptor.Descriptor {
	return h.desc.Load()
}

// SetDescriptor swaps the descriptor. Launch parameters only take
// effect on the next spawn, live fields are read on their next use.
func (h *Handle) SetDescriptor(desc *descriptor.Descriptor) {
	h.desc.Store(desc)
}

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// PID returns the pid of the running process, or 0.
func (h *Handle) PID() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.proc == nil {
		return 0
	}
	return h.proc.pid
}

// RecordMemory stores the latest memory sample.
func (h *Handle) RecordMemory(rss uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.memory = rss
}

// Start spawns the process. Starting a handle that already owns a
// process is a no-op. A pending delayed restart is replaced by an
// immediate start.
func (h *Handle) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.proc != nil {
		return nil
	}

	h.lastErr = nil

	return h.spawnLocked(ctx)
}

// Stop terminates the process gracefully, killing it once grace has
// elapsed. The handle always ends up Stopped with its logs closed. If the
// process had to be killed, an error wrapping ErrShutdownTimeout is
// returned.
func (h *Handle) Stop(ctx context.Context, grace time.Duration) error {
	h.mu.Lock()

	if h.proc == nil {
		h.cancelRestartLocked()
		h.setState(Stopped)
		h.closeLogsLocked()
		h.mu.Unlock()
		return nil
	}

	p := h.proc

	if h.stopping {
		// another stop or restart is in flight. Leaving RestartPending
		// keeps a restart from spawning again.
		h.setState(Stopping)
		h.mu.Unlock()

		select {
		case <-p.Done():
		case <-ctx.Done():
			return ctx.Err()
		}

		h.mu.Lock()
		defer h.mu.Unlock()

		h.releaseLocked(p, false)
		h.setState(Stopped)
		h.closeLogsLocked()

		return nil
	}

	h.stopping = true
	h.runCancel()
	h.setState(Stopping)
	h.mu.Unlock()

	forced := h.terminate(ctx, p, grace)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.releaseLocked(p, forced)
	h.setState(Stopped)
	h.closeLogsLocked()

	if forced {
		return h.lastErr
	}

	return nil
}

// Close stops the handle like Stop and refuses every later spawn with
// ErrClosed.
func (h *Handle) Close(ctx context.Context, grace time.Duration) error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	return h.Stop(ctx, grace)
}

// Restart gracefully stops the process and spawns it again. The restart
// does not count as a crash. A handle without a process is started.
func (h *Handle) Restart(ctx context.Context, grace time.Duration) error {
	h.mu.Lock()

	if h.proc == nil {
		defer h.mu.Unlock()
		h.lastErr = nil
		return h.spawnLocked(ctx)
	}

	if h.stopping {
		h.mu.Unlock()
		return nil
	}

	p := h.proc
	h.stopping = true
	h.runCancel()
	h.setState(RestartPending)
	h.mu.Unlock()

	forced := h.terminate(ctx, p, grace)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.releaseLocked(p, forced)
	if !forced {
		h.lastErr = nil
	}

	// a concurrent stop already settled the handle
	if h.state != RestartPending {
		return nil
	}

	h.restarts++

	return h.spawnLocked(ctx)
}

// ScheduleRestart moves a crashed handle to RestartPending and calls fire
// after delay. It reports false if the handle is no longer Crashed.
func (h *Handle) ScheduleRestart(delay time.Duration, fire func()) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != Crashed {
		return false
	}

	h.setState(RestartPending)
	h.restartTimer = time.AfterFunc(delay, fire)

	return true
}

// StartPending spawns a handle waiting in RestartPending. It reports
// false if the restart was cancelled in the meantime.
func (h *Handle) StartPending(ctx context.Context) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != RestartPending || h.proc != nil {
		return false, nil
	}

	h.restartTimer = nil
	h.restarts++

	return true, h.spawnLocked(ctx)
}

// Abandon settles a crashed handle in Stopped. A non-nil err replaces
// the recorded crash as the handle's last error.
func (h *Handle) Abandon(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != Crashed {
		return
	}

	if err != nil {
		h.lastErr = err
	}

	h.setState(Stopped)
	h.closeLogsLocked()
}

// Snapshot returns the current lifecycle information of the handle.
func (h *Handle) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := Snapshot{
		Name:     h.name,
		Instance: h.instance,
		State:    h.state,
		Restarts: h.restarts,
		Memory:   h.memory,
		RunID:    h.runID,
	}

	if h.proc != nil {
		startedAt := h.proc.startedAt
		s.PID = h.proc.pid
		s.StartedAt = &startedAt
		s.Uptime = time.Since(startedAt)
	}

	if h.lastExit != nil {
		exit := *h.lastExit
		s.LastExit = &exit
	}

	if h.lastErr != nil {
		s.LastError = h.lastErr.Error()
	}

	return s
}

// LastError returns the most recent error recorded on the handle.
func (h *Handle) LastError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastErr
}

func (h *Handle) spawnLocked(ctx context.Context) error {
	if h.closed {
		return fmt.Errorf("%s: %w", h.name, ErrClosed)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	desc := h.desc.Load()

	h.cancelRestartLocked()
	h.setState(Starting)

	if h.redirector == nil {
		r, err := logredirect.Open(logredirect.Paths(desc.InstanceLogs(h.instance)), logredirect.Options{
			Timestamps: desc.Timestamps,
			TimeFormat: desc.TimeFormat,
			Rotation:   h.rotation,
			OnError: func(err error) {
				h.log.Warn("failed to write log line", zap.Error(err))
			},
		})
		if err != nil {
			return h.failSpawnLocked(fmt.Errorf("open logs: %w", err))
		}
		h.redirector = r
	}

	cmd, args := desc.Command()

	p, err := startProc(startConfig{
		Cmd:       cmd,
		Args:      args,
		Cwd:       desc.Cwd,
		Env:       desc.Environ(os.Environ()),
		Stdout:    h.redirector.Stdout(),
		Stderr:    h.redirector.Stderr(),
		WaitDelay: h.waitDelay,
	}, h.log)
	if err != nil {
		return h.failSpawnLocked(err)
	}

	runCtx, cancel := context.WithCancel(context.Background())

	h.proc = p
	h.stopping = false
	h.runCancel = cancel
	h.runID = uuid.NewString()
	h.memory = 0

	h.log.Info("process started",
		zap.Int("pid", p.pid),
		zap.String("run_id", h.runID),
	)

	h.setState(Running)

	if h.hooks.OnRunning != nil {
		go h.hooks.OnRunning(runCtx, h, p.pid)
	}

	go h.wait(p)

	return nil
}

func (h *Handle) failSpawnLocked(err error) error {
	spawnErr := &SpawnError{Name: h.name, Err: err}

	h.log.Error("failed to spawn process", zap.Error(err))

	h.lastErr = spawnErr
	h.setState(Stopped)
	h.closeLogsLocked()

	return spawnErr
}

// wait observes the exit of p. Exits requested by Stop or Restart are
// settled by those methods, any other exit is a crash.
func (h *Handle) wait(p *proc) {
	<-p.Done()
	evt := p.Exit()

	h.mu.Lock()

	if h.proc != p || h.stopping {
		h.mu.Unlock()
		return
	}

	h.proc = nil
	h.runCancel()
	h.lastExit = &evt

	log := h.log.With(zap.Int("pid", p.pid), zap.Stringer("exit", evt))

	if evt.Code != nil && h.desc.Load().IsCleanExit(*evt.Code) {
		log.Info("process completed")
		h.setState(Stopped)
		h.closeLogsLocked()
		h.mu.Unlock()
		return
	}

	log.Warn("process exited unexpectedly", zap.Duration("uptime", evt.Uptime))

	h.lastErr = &CrashError{Name: h.name, Exit: evt}
	h.setState(Crashed)
	h.mu.Unlock()

	if h.hooks.OnExit != nil {
		h.hooks.OnExit(h, evt)
	}
}

// terminate stops p within grace, escalating to SIGKILL. It reports
// whether the process had to be killed.
func (h *Handle) terminate(ctx context.Context, p *proc, grace time.Duration) bool {
	if err := p.Terminate(ctx, grace); err == nil {
		return false
	}

	h.log.Warn("process did not stop gracefully, killing",
		zap.Int("pid", p.pid),
		zap.Duration("grace", grace),
	)

	if err := p.Kill(killTimeout); err != nil {
		h.log.Error("process did not exit after kill", zap.Int("pid", p.pid), zap.Error(err))
	}

	return true
}

func (h *Handle) releaseLocked(p *proc, forced bool) {
	// a newer process may own the handle by now
	if h.proc == p {
		h.proc = nil
		h.stopping = false
	}

	select {
	case <-p.Done():
		evt := p.Exit()
		h.lastExit = &evt
	default:
	}

	if forced {
		h.lastErr = fmt.Errorf("%s: %w", h.name, ErrShutdownTimeout)
	}
}

func (h *Handle) cancelRestartLocked() {
	if h.restartTimer != nil {
		h.restartTimer.Stop()
		h.restartTimer = nil
	}
}

func (h *Handle) closeLogsLocked() {
	if h.redirector == nil {
		return
	}

	if err := h.redirector.Close(); err != nil {
		h.log.Warn("failed to close logs", zap.Error(err))
	}
	h.redirector = nil
}

func (h *Handle) setState(to State) {
	if h.state == to {
		return
	}

	from := h.state
	h.state = to

	if h.hooks.OnTransition != nil {
		h.hooks.OnTransition(h, from, to)
	}
}
