package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vk/flowloop/internal/ctxlog"
	"github.com/vk/flowloop/internal/dag"
	"github.com/vk/flowloop/internal/event"
	"github.com/vk/flowloop/internal/node"
	"github.com/vk/flowloop/internal/overrides"
)

// CycleResult summarizes one pass over the plan.
type CycleResult struct {
	Cycle    int64
	Duration time.Duration
	// Results holds the outputs of every node that completed.
	Results map[string]map[string]any
	// Errors holds the failure of every node that did not.
	Errors map[string]error
}

// ErrorStrings renders Errors for the wire.
func (r CycleResult) ErrorStrings() map[string]string {
	if len(r.Errors) == 0 {
		return nil
	}
	out := make(map[string]string, len(r.Errors))
	for id, err := range r.Errors {
		out[id] = err.Error()
	}
	return out
}

// runCycle executes every entry once in plan order.
func (e *Executor) runCycle(ctx context.Context, plan *dag.Plan, cycle int64, continuous bool) CycleResult {
	logger := ctxlog.FromContext(ctx)
	start := time.Now()

	ctx, span := e.tracer.Start(ctx, "executor.cycle", trace.WithAttributes(
		attribute.String("workflow.name", plan.Name()),
		attribute.Int64("cycle", cycle),
		attribute.Int("nodes", plan.Len()),
	))
	defer span.End()

	if continuous {
		e.publish(event.TypeContinuousUpdate, event.ContinuousUpdate{ExecutionCount: cycle, Status: event.StatusExecuting})
	}

	// Overrides written after this point are seen from the next cycle on.
	view := e.overrides.View()
	outputs := make([]map[string]any, plan.Len())
	failed := make([]bool, plan.Len())
	res := CycleResult{
		Cycle:   cycle,
		Results: make(map[string]map[string]any, plan.Len()),
		Errors:  make(map[string]error),
	}

	for i := range plan.Len() {
		entry := plan.Entry(i)
		e.transition(entry.NodeID, node.PhaseExecuting, nil, nil, cycle, nil)

		in, err := gather(entry, outputs, failed, view)
		var out node.Output
		if err == nil {
			out, err = e.execute(ctx, entry, in)
		}

		if err != nil {
			nerr := &NodeExecutionError{NodeID: entry.NodeID, Cycle: cycle, Err: err}
			failed[i] = true
			res.Errors[entry.NodeID] = nerr
			logger.Error("Node execution failed.", "node", entry.NodeID, "type", entry.Type, "cycle", cycle, "error", err)
			e.transition(entry.NodeID, node.PhaseError, nil, nerr, cycle, nil)
			continue
		}

		// Consumers read outputs[i] through gather, which copies; the stored
		// and published result is a snapshot the node can no longer reach.
		outputs[i] = out.Values
		snapshot := node.CloneValues(out.Values)
		res.Results[entry.NodeID] = snapshot
		e.transition(entry.NodeID, node.PhaseCompleted, snapshot, nil, cycle, out.SideChannel)
	}

	res.Duration = time.Since(start)
	e.lastCycle.Store(int64(res.Duration))

	span.SetAttributes(
		attribute.Int64("cycle.duration_ms", res.Duration.Milliseconds()),
		attribute.Int("cycle.failed_nodes", len(res.Errors)),
	)
	if len(res.Errors) > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d node(s) failed", len(res.Errors)))
	} else {
		span.SetStatus(codes.Ok, "")
	}

	if continuous {
		e.publish(event.TypeContinuousUpdate, event.ContinuousUpdate{
			ExecutionCount: cycle,
			Status:         event.StatusCompleted,
			ExecutionTime:  res.Duration.Seconds(),
			Results:        res.Results,
			Errors:         res.ErrorStrings(),
		})
	}
	logger.Debug("Cycle finished.", "cycle", cycle, "duration", res.Duration, "failed_nodes", len(res.Errors))
	return res
}

// transition records a node's new phase and publishes it.
func (e *Executor) transition(nodeID string, phase node.Phase, result map[string]any, err error, cycle int64, side any) {
	state := node.RuntimeState{
		NodeID:     nodeID,
		Phase:      phase,
		LastResult: result,
		LastError:  err,
		UpdatedAt:  time.Now(),
	}
	if phase == node.PhaseExecuting || phase == node.PhaseError {
		state.LastResult = e.states.Get(nodeID).LastResult
	}
	e.states.Set(state)
	e.publish(event.TypeNodeState, event.NodeStateFrom(state, cycle, side))
}

// gather merges the input sources of one entry. Precedence, lowest first:
// schema default, static parameter, override, upstream edge. Overrides apply
// only to inputs no edge feeds. An edge whose producer failed this cycle
// delivers the producer's declared default for that output. Every value is
// deep-copied so a node cannot mutate what another node or the store holds.
func gather(entry *dag.PlanEntry, outputs []map[string]any, failed []bool, view *overrides.View) (node.Inputs, error) {
	in := make(node.Inputs, len(entry.Inputs)+len(entry.Params))
	for _, p := range entry.Inputs {
		if p.Default != nil {
			in[p.Name] = node.CloneValue(p.Default)
		}
	}
	for name, v := range entry.Params {
		in[name] = node.CloneValue(v)
	}
	view.Each(entry.NodeID, func(name string, v any) {
		if !entry.IsBound(name) {
			in[name] = node.CloneValue(v)
		}
	})
	for _, b := range entry.Bindings {
		if failed[b.Producer] {
			in[b.Input] = node.CloneValue(b.Fallback)
			continue
		}
		if v, ok := outputs[b.Producer][b.Output]; ok {
			in[b.Input] = node.CloneValue(v)
		} else {
			in[b.Input] = node.CloneValue(b.Fallback)
		}
	}

	for _, p := range entry.Inputs {
		if !p.Required || entry.IsBound(p.Name) {
			continue
		}
		if v, ok := in[p.Name]; !ok || v == nil {
			return nil, &MissingInputError{Input: p.Name}
		}
	}
	return in, nil
}

type outcome struct {
	out node.Output
	err error
}

// execute runs one node under the per-node timeout. The call is detached
// from cancellation of ctx so that a stop lets it finish; only the timeout
// bounds it. A call that times out is abandoned.
func (e *Executor) execute(ctx context.Context, entry *dag.PlanEntry, in node.Inputs) (node.Output, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.nodeTimeout)
	defer cancel()

	ctx, span := e.tracer.Start(ctx, "node.execute", trace.WithAttributes(
		attribute.String("node.id", entry.NodeID),
		attribute.String("node.type", entry.Type),
	))
	defer span.End()
	ctx = ctxlog.WithLogger(ctx, ctxlog.FromContext(ctx).With("node", entry.NodeID))

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: &PanicError{Value: r}}
			}
		}()
		out, err := entry.Node.Execute(ctx, in)
		done <- outcome{out: out, err: err}
	}()

	var res outcome
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = fmt.Errorf("%w after %s", ErrNodeTimeout, e.nodeTimeout)
	}

	if res.err != nil {
		if errors.Is(res.err, context.DeadlineExceeded) {
			res.err = fmt.Errorf("%w after %s: %w", ErrNodeTimeout, e.nodeTimeout, res.err)
		}
		span.RecordError(res.err)
		span.SetStatus(codes.Error, res.err.Error())
		return node.Output{}, res.err
	}
	span.SetStatus(codes.Ok, "")
	return res.out, nil
}
