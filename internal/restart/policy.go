package restart

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrFlapDetected marks an app that crashed too often to be restarted.
var ErrFlapDetected = errors.New("flap detected")

// Config holds the restart policy.
type Config struct {
	// BaseDelay is the delay before the first restart
	BaseDelay time.Duration `conf:"base_delay"`

	// MaxDelay caps the doubling delay
	MaxDelay time.Duration `conf:"max_delay"`

	// StabilityWindow is the uptime after which the delay
	// is reset to BaseDelay
	StabilityWindow time.Duration `conf:"stability_window"`

	// FlapWindow is the period in which crashes are counted
	FlapWindow time.Duration `conf:"flap_window"`

	// MaxCrashes is the number of crashes tolerated within
	// FlapWindow. Zero disables the flap guard.
	MaxCrashes int `conf:"max_crashes"`
}

func DefaultConfig() Config {
	return Config{
		BaseDelay:       100 * time.Millisecond,
		MaxDelay:        15 * time.Second,
		StabilityWindow: 30 * time.Second,
		FlapWindow:      time.Minute,
		MaxCrashes:      10,
	}
}

// Overrides are per app policy values. Zero values keep the default.
type Overrides struct {
	BaseDelay       time.Duration
	MaxCrashes      int
	StabilityWindow time.Duration
}

// Action is the outcome of a decision.
type Action int

const (
	// RestartNow restarts the process after Decision.Delay
	RestartNow Action = iota

	// GiveUp leaves the process stopped
	GiveUp
)

func (a Action) String() string {
	switch a {
	case RestartNow:
		return "restart"
	case GiveUp:
		return "give_up"
	default:
		return "unknown"
	}
}

// Decision is returned by Engine.Decide.
type Decision struct {
	Action Action

	// Delay before restarting, only set for RestartNow
	Delay time.Duration

	// Crashes is the number of crashes within the flap window
	Crashes int

	// Err is a *FlapError for GiveUp
	Err error
}

// FlapError is the fatal per app condition of too many crashes.
type FlapError struct {
	Crashes int
	Window  time.Duration
}

func (e *FlapError) Error() string {
	return fmt.Sprintf("%s: %d crashes within %s", ErrFlapDetected, e.Crashes, e.Window)
}

func (e *FlapError) Unwrap() error {
	return ErrFlapDetected
}

// History is the crash record of one process instance.
type History struct {
	mu      sync.Mutex
	crashes []time.Time
	policy  Config
	backoff *backoff.ExponentialBackOff
}

func NewHistory() *History {
	return &History{}
}

// Reset forgets all crashes, e.g. after an operator restarted the app.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.crashes = nil
	if h.backoff != nil {
		h.backoff.Reset()
	}
}

// Crashes returns the number of recorded crashes.
func (h *History) Crashes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.crashes)
}

// Engine decides whether and when crashed processes are restarted.
type Engine struct {
	config Config
	now    func() time.Time
}

func NewEngine(config Config) *Engine {
	return &Engine{
		config: config,
		now:    time.Now,
	}
}

// Policy returns the effective policy for the given overrides.
func (e *Engine) Policy(o Overrides) Config {
	p := e.config

	if o.BaseDelay > 0 {
		p.BaseDelay = o.BaseDelay
	}
	if o.MaxCrashes > 0 {
		p.MaxCrashes = o.MaxCrashes
	}
	if o.StabilityWindow > 0 {
		p.StabilityWindow = o.StabilityWindow
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}

	return p
}

// Decide records a crash of a process that had been running for uptime
// and decides how to react.
func (e *Engine) Decide(h *History, p Config, uptime time.Duration) Decision {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := e.now()

	if h.backoff == nil || h.policy != p {
		h.backoff = newBackOff(p)
		h.policy = p
	}

	// a process that stayed up long enough starts over
	if uptime > p.StabilityWindow {
		h.backoff.Reset()
	}

	cutoff := now.Add(-p.FlapWindow)
	kept := h.crashes[:0]
	for _, t := range h.crashes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	h.crashes = append(kept, now)

	crashes := len(h.crashes)

	if p.MaxCrashes > 0 && crashes > p.MaxCrashes {
		return Decision{
			Action:  GiveUp,
			Crashes: crashes,
			Err:     &FlapError{Crashes: crashes, Window: p.FlapWindow},
		}
	}

	delay := h.backoff.NextBackOff()
	if delay == backoff.Stop || delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	return Decision{
		Action:  RestartNow,
		Delay:   delay,
		Crashes: crashes,
	}
}

func newBackOff(p Config) *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         p.MaxDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}
