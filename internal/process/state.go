package process

import "fmt"

// State is the lifecycle state of a Handle.
type State int

const (
	Stopped State = iota
	Starting
	Running
	Stopping
	Crashed
	RestartPending
)

var stateNames = map[State]string{
	Stopped:        "stopped",
	Starting:       "starting",
	Running:        "running",
	Stopping:       "stopping",
	Crashed:        "crashed",
	RestartPending: "restart_pending",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}

	return fmt.Sprintf("unknown(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}

	return fmt.Errorf("unknown state %q", text)
}
