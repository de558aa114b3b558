package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/flowloop/internal/broadcast"
	"github.com/vk/flowloop/internal/ctxlog"
	"github.com/vk/flowloop/internal/dag"
	"github.com/vk/flowloop/internal/event"
	"github.com/vk/flowloop/internal/executor"
	"github.com/vk/flowloop/internal/model"
	"github.com/vk/flowloop/internal/overrides"
	"github.com/vk/flowloop/internal/registry"
)

// Engine is one running workflow session.
type Engine struct {
	ctx       context.Context
	registry  *registry.Registry
	overrides *overrides.Store
	hub       *broadcast.Hub
	executor  *executor.Executor
}

// New wires an engine from its parts. ctx is the lifetime of the session:
// continuous runs started through the engine end when it is cancelled, even
// if the request that started them has already returned.
func New(ctx context.Context, reg *registry.Registry, store *overrides.Store, hub *broadcast.Hub, exec *executor.Executor) *Engine {
	return &Engine{
		ctx:       ctx,
		registry:  reg,
		overrides: store,
		hub:       hub,
		executor:  exec,
	}
}

// Registry returns the node catalog.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Hub returns the broadcast hub.
func (e *Engine) Hub() *broadcast.Hub { return e.hub }

// Overrides returns the override store.
func (e *Engine) Overrides() *overrides.Store { return e.overrides }

// Compile builds a plan for wf without running it. The caller owns the plan.
func (e *Engine) Compile(ctx context.Context, wf *model.Workflow) (*dag.Plan, error) {
	return dag.Compile(ctx, wf, e.registry)
}

// StartContinuous compiles wf and starts running it continuously.
func (e *Engine) StartContinuous(wf *model.Workflow) error {
	if e.executor.IsRunning() {
		return executor.ErrAlreadyRunning
	}
	plan, err := dag.Compile(e.ctx, wf, e.registry)
	if err != nil {
		e.publishFailure(wf, err)
		return err
	}
	if err := e.executor.Start(e.ctx, plan); err != nil {
		if cerr := plan.Close(); cerr != nil {
			ctxlog.FromContext(e.ctx).Warn("Failed to close unused plan.", "error", cerr)
		}
		return err
	}
	return nil
}

// StopContinuous stops the continuous run and reports whether one was active.
func (e *Engine) StopContinuous() bool {
	if !e.executor.IsRunning() {
		return false
	}
	e.executor.Stop()
	return true
}

// Done returns a channel closed when the current continuous run ends.
func (e *Engine) Done() <-chan struct{} {
	return e.executor.Done()
}

// RunOnce compiles wf, runs a single cycle and releases the plan. It is
// rejected while a continuous run is active.
func (e *Engine) RunOnce(ctx context.Context, wf *model.Workflow) (executor.CycleResult, error) {
	if e.executor.IsRunning() {
		return executor.CycleResult{}, executor.ErrAlreadyRunning
	}
	plan, err := dag.Compile(ctx, wf, e.registry)
	if err != nil {
		e.publishFailure(wf, err)
		return executor.CycleResult{}, err
	}
	defer func() {
		if err := plan.Close(); err != nil {
			ctxlog.FromContext(ctx).Warn("Failed to close node instances.", "error", err)
		}
	}()
	return e.executor.RunOnce(ctx, plan)
}

// SetInterval changes the pause between continuous cycles.
func (e *Engine) SetInterval(d time.Duration) error {
	return e.executor.SetInterval(d)
}

// UpdateInput stores an override and announces it to every observer. While
// a workflow runs, the node and input must exist in its plan.
func (e *Engine) UpdateInput(nodeID, input string, value any) error {
	if err := e.validateOverride(nodeID, input); err != nil {
		return err
	}
	if err := e.overrides.Set(nodeID, input, value); err != nil {
		return err
	}
	e.hub.Publish(event.New(event.TypeParameterUpdated, event.ParameterUpdated{
		NodeID:         nodeID,
		ParameterName:  input,
		ParameterValue: value,
		Success:        true,
	}))
	return nil
}

// ClearOverrides drops the overrides of one node, or of every node when
// nodeID is empty. Running cycles see the change from the next cycle on.
func (e *Engine) ClearOverrides(nodeID string) {
	if nodeID == "" {
		e.overrides.Reset()
	} else {
		e.overrides.Clear(nodeID)
	}
	ctxlog.FromContext(e.ctx).Info("Overrides cleared.", "node", nodeID, "remaining", e.overrides.Len())
}

func (e *Engine) validateOverride(nodeID, input string) error {
	plan := e.executor.ActivePlan()
	if plan == nil {
		return nil
	}
	i, ok := plan.IndexOf(nodeID)
	if !ok {
		return &overrides.OverrideWriteError{NodeID: nodeID, InputName: input, Reason: "node is not part of the running workflow"}
	}
	entry := plan.Entry(i)
	if _, ok := entry.Inputs.Lookup(input); !ok {
		return &overrides.OverrideWriteError{NodeID: nodeID, InputName: input, Reason: fmt.Sprintf("node type '%s' has no input '%s'", entry.Type, input)}
	}
	return nil
}

// Status returns the execution snapshot sent to observers.
func (e *Engine) Status() event.ExecutionStatus {
	st := e.executor.Status()
	out := event.ExecutionStatus{
		IsRunning:         st.Running,
		HasWorkflow:       st.HasPlan,
		ExecutionCount:    st.Cycles,
		LastExecutionTime: st.LastCycle.Seconds(),
		LoopInterval:      st.Interval.Seconds(),
		Results:           st.Results,
		Errors:            st.Errors,
	}
	ids := e.hub.IDs()
	published, evictions := e.hub.Stats()
	out.Observers = len(ids)
	out.Broadcast = event.BroadcastStats{Published: published, Evictions: evictions, ObserverIDs: ids}
	for _, o := range e.overrides.Entries() {
		out.Overrides = append(out.Overrides, event.OverrideSummary{
			NodeID:     o.NodeID,
			InputName:  o.InputName,
			Value:      o.Value,
			ReceivedAt: event.Stamp(o.ReceivedAt),
		})
	}
	for _, n := range st.Nodes {
		summary := event.NodeSummary{NodeID: n.NodeID, Type: n.Type, Phase: n.Phase}
		if !n.UpdatedAt.IsZero() {
			summary.UpdatedAt = event.Stamp(n.UpdatedAt)
		}
		out.Nodes = append(out.Nodes, summary)
	}
	return out
}

// StatusEnvelope wraps Status for the wire.
func (e *Engine) StatusEnvelope() event.Envelope {
	return event.New(event.TypeExecutionStatus, e.Status())
}

// Close stops any run and disconnects every observer.
func (e *Engine) Close() {
	e.StopContinuous()
	e.hub.Close()
}

func (e *Engine) publishFailure(wf *model.Workflow, err error) {
	name := ""
	if wf != nil {
		name = wf.Name
	}
	ctxlog.FromContext(e.ctx).Error("Workflow failed to compile.", "workflow", name, "error", err)
	e.hub.Publish(event.New(event.TypeWorkflowEvent, event.WorkflowEvent{
		Event: event.WorkflowError,
		Name:  name,
		Error: err.Error(),
	}))
}
