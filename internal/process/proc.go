package process

import (
	"context"
	"io"
	"os/exec"
	"syscall"
	"time"

	"go.uber.org/zap"
)

type startConfig struct {
	// Cmd is the path or name of the binary to execute
	Cmd string

	// Args is the list of arguments to pass to the command
	Args []string

	// Cwd is the working directory of the command
	Cwd string

	// Env is the full environment of the command
	Env []string

	// Stdout and Stderr receive the output of the command.
	// Writers implementing flusher are flushed after exit.
	Stdout io.Writer
	Stderr io.Writer

	// WaitDelay bounds how long output is drained after exit
	WaitDelay time.Duration
}

type flusher interface {
	Flush() error
}

type proc struct {
	pid         int
	startedAt   time.Time
	termination chan struct{}
	exit        ExitEvent

	log *zap.Logger
}

func startProc(config startConfig, log *zap.Logger) (*proc, error) {
	cmd := exec.Command(config.Cmd, config.Args...)

	cmd.Env = config.Env
	cmd.Dir = config.Cwd
	cmd.Stdout = config.Stdout
	cmd.Stderr = config.Stderr
	cmd.WaitDelay = config.WaitDelay

	// run the child in its own process group, so signals
	// reach everything it spawned
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &proc{
		pid:         cmd.Process.Pid,
		startedAt:   time.Now(),
		termination: make(chan struct{}),
		log:         log.Named("proc").With(zap.Int("pid", cmd.Process.Pid)),
	}

	go func() {
		// block until the process exits and its output is drained
		err := cmd.Wait()

		p.exit = getExitEvent(err, time.Now())
		p.exit.Uptime = p.exit.At.Sub(p.startedAt)

		for _, w := range []io.Writer{config.Stdout, config.Stderr} {
			if f, ok := w.(flusher); ok {
				if err := f.Flush(); err != nil {
					p.log.Warn("flush output failed", zap.Error(err))
				}
			}
		}

		p.log.Debug("process exited", zap.Stringer("exit", p.exit))

		close(p.termination)
	}()

	return p, nil
}

// Done is closed once the process exited and its output was drained.
func (p *proc) Done() <-chan struct{} {
	return p.termination
}

// Exit returns the exit event. It is only valid after Done is closed.
func (p *proc) Exit() ExitEvent {
	<-p.termination
	return p.exit
}

// Terminate sends SIGTERM to the process group and waits up to timeout
// for the process to exit. It returns ErrShutdownTimeout if the process
// is still alive afterwards, or if ctx ends first.
func (p *proc) Terminate(ctx context.Context, timeout time.Duration) error {
	// terminate should report success if the process terminated
	// by the time the request is received.
	select {
	case <-p.termination:
		p.log.Debug("process already terminated")
		return nil
	default:
	}

	p.kill(syscall.SIGTERM)

	return p.waitForTermination(ctx, timeout)
}

// Kill sends SIGKILL to the process group and waits up to timeout.
func (p *proc) Kill(timeout time.Duration) error {
	select {
	case <-p.termination:
		p.log.Debug("process already terminated")
		return nil
	default:
	}

	p.kill(syscall.SIGKILL)

	return p.waitForTermination(context.Background(), timeout)
}

func (p *proc) waitForTermination(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	// block until either:
	//  * the process exits (termination is closed)
	//  * the timeout is reached
	//  * the caller gives up
	select {
	case <-p.termination:
		return nil
	case <-timer.C:
		return ErrShutdownTimeout
	case <-ctx.Done():
		return ErrShutdownTimeout
	}
}

func (p *proc) kill(signal syscall.Signal) {
	log := p.log.With(zap.Stringer("signal", signal))

	log.Debug("sending signal")

	// best effort, ignore errors
	if err := p.sendKillSignal(signal); err != nil {
		log.Debug("signal failed", zap.Error(err))
	}
}

func (p *proc) sendKillSignal(signal syscall.Signal) error {
	if pgid, err := syscall.Getpgid(p.pid); err == nil {
		// Negative pid sends signal to all in process group
		return syscall.Kill(-pgid, signal)
	}

	return syscall.Kill(p.pid, signal)
}
