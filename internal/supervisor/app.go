package supervisor

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/lambda-feedback/shepherd/internal/descriptor"
	"github.com/lambda-feedback/shepherd/internal/process"
	"github.com/lambda-feedback/shepherd/internal/restart"
)

// app is a registry entry. mu serializes every operation on the app,
// including reactions to crashes and memory samples.
type app struct {
	name string

	mu sync.Mutex

	// evicted is set once the app was removed by a reload
	evicted bool

	// closed is set by Shutdown, closed apps never spawn again
	closed bool

	desc      atomic.Pointer[descriptor.Descriptor]
	instances atomic.Pointer[[]*instance]
}

type instance struct {
	handle  *process.Handle
	history *restart.History
}

func (a *app) list() []*instance {
	if p := a.instances.Load(); p != nil {
		return *p
	}
	return nil
}

func (a *app) owns(inst *instance) bool {
	for _, i := range a.list() {
		if i == inst {
			return true
		}
	}
	return false
}

func (a *app) snapshots() []process.Snapshot {
	instances := a.list()

	s := make([]process.Snapshot, 0, len(instances))
	for _, inst := range instances {
		s = append(s, inst.handle.Snapshot())
	}

	return s
}

func sortSnapshots(s []process.Snapshot) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Name != s[j].Name {
			return s[i].Name < s[j].Name
		}
		return s[i].Instance < s[j].Instance
	})
}
