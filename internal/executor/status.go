package executor

import (
	"time"

	"github.com/vk/flowloop/internal/node"
)

// NodeStatus is the runtime state of one plan entry.
type NodeStatus struct {
	node.RuntimeState
	Type string
}

// Status is a point-in-time snapshot of the executor.
type Status struct {
	Running   bool
	HasPlan   bool
	Workflow  string
	Cycles    int64
	LastCycle time.Duration
	Interval  time.Duration
	Results   map[string]map[string]any
	Errors    map[string]string
	Nodes     []NodeStatus
}

// Status returns the current snapshot. It is safe to call from any goroutine.
func (e *Executor) Status() Status {
	e.mu.Lock()
	running := e.mode == modeContinuous
	plan := e.plan
	e.mu.Unlock()

	results, errs := e.states.Results()
	st := Status{
		Running:   running,
		HasPlan:   plan != nil,
		Cycles:    e.cycles.Load(),
		LastCycle: time.Duration(e.lastCycle.Load()),
		Interval:  e.Interval(),
		Results:   results,
		Errors:    errs,
	}
	if plan == nil {
		return st
	}

	st.Workflow = plan.Name()
	st.Nodes = make([]NodeStatus, plan.Len())
	for i := range plan.Len() {
		entry := plan.Entry(i)
		st.Nodes[i] = NodeStatus{RuntimeState: e.states.Get(entry.NodeID), Type: entry.Type}
	}
	return st
}
