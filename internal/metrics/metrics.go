package metrics

// Collector records supervisor events.
type Collector interface {
	// Transition records a lifecycle state change of an instance
	Transition(app string, instance int, from, to string)

	// Restart records a restart, reason is "crash", "memory" or "manual"
	Restart(app string, reason string)

	// Crash records an unexpected exit
	Crash(app string)

	// Flap records an app that was given up on
	Flap(app string)

	// SpawnFailure records a process that could not be launched
	SpawnFailure(app string)

	// ShutdownTimeout records a process killed after its grace period
	ShutdownTimeout(app string)

	// Memory records the last sampled RSS of an instance
	Memory(app string, instance int, rss uint64)

	// Forget drops all series of an evicted app
	Forget(app string)
}

type noop struct{}

// Noop returns a Collector that discards everything.
func Noop() Collector {
	return noop{}
}

func (noop) Transition(string, int, string, string) {}
func (noop) Restart(string, string)                 {}
func (noop) Crash(string)                           {}
func (noop) Flap(string)                            {}
func (noop) SpawnFailure(string)                    {}
func (noop) ShutdownTimeout(string)                 {}
func (noop) Memory(string, int, uint64)             {}
func (noop) Forget(string)                          {}
