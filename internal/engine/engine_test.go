package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/flowloop/internal/broadcast"
	"github.com/vk/flowloop/internal/dag"
	"github.com/vk/flowloop/internal/event"
	"github.com/vk/flowloop/internal/executor"
	"github.com/vk/flowloop/internal/model"
	"github.com/vk/flowloop/internal/overrides"
	"github.com/vk/flowloop/internal/registry"
	"github.com/vk/flowloop/internal/testutil"
)

func newEngine(t *testing.T, interval time.Duration) (*Engine, *broadcast.Observer) {
	t.Helper()
	ctx, _ := testutil.LogContext(t)
	reg := registry.New()
	reg.RegisterModules(testutil.NewRecordingModule())
	store := overrides.New()
	hub := broadcast.New(ctx, 1024)
	exec := executor.New(hub, store, executor.Options{Interval: interval})
	eng := New(ctx, reg, store, hub, exec)
	t.Cleanup(eng.Close)

	obs, err := hub.Register("test")
	require.NoError(t, err)
	return eng, obs
}

func doubler() *model.Workflow {
	return &model.Workflow{
		Name:  "doubler",
		Nodes: []model.NodeSpec{{ID: "n", Type: "double"}},
	}
}

func waitFor(t *testing.T, obs *broadcast.Observer, typ event.Type, match func(event.Envelope) bool) event.Envelope {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case env, ok := <-obs.Events():
			require.True(t, ok, "observer closed")
			if env.Type == typ && (match == nil || match(env)) {
				return env
			}
		case <-timeout:
			t.Fatalf("no %s event received", typ)
		}
	}
}

func TestContinuousRunWithOverrides(t *testing.T) {
	eng, obs := newEngine(t, 5*time.Millisecond)

	require.NoError(t, eng.UpdateInput("n", "x", 5), "overrides are accepted before start")
	updated := waitFor(t, obs, event.TypeParameterUpdated, nil)
	assert.Equal(t, "x", updated.Data.(event.ParameterUpdated).ParameterName)

	require.NoError(t, eng.StartContinuous(doubler()))
	assert.ErrorIs(t, eng.StartContinuous(doubler()), executor.ErrAlreadyRunning)

	first := waitFor(t, obs, event.TypeNodeState, func(env event.Envelope) bool {
		return env.Data.(event.NodeState).Phase.String() == "completed"
	})
	assert.Equal(t, map[string]any{"output": 10.0}, first.Data.(event.NodeState).Result)

	require.NoError(t, eng.UpdateInput("n", "x", 21))
	waitFor(t, obs, event.TypeNodeState, func(env event.Envelope) bool {
		ns := env.Data.(event.NodeState)
		return ns.Result != nil && ns.Result["output"] == 42.0
	})

	var werr *overrides.OverrideWriteError
	require.ErrorAs(t, eng.UpdateInput("ghost", "x", 1), &werr)
	assert.Contains(t, werr.Error(), "not part of the running workflow")
	require.ErrorAs(t, eng.UpdateInput("n", "y", 1), &werr)
	assert.Contains(t, werr.Error(), "has no input 'y'")

	_, err := eng.RunOnce(context.Background(), doubler())
	assert.ErrorIs(t, err, executor.ErrAlreadyRunning)

	st := eng.Status()
	assert.True(t, st.IsRunning)
	assert.True(t, st.HasWorkflow)
	assert.Positive(t, st.ExecutionCount)
	assert.Equal(t, 1, st.Observers)
	require.Len(t, st.Nodes, 1)
	assert.Equal(t, "double", st.Nodes[0].Type)

	assert.True(t, eng.StopContinuous())
	assert.False(t, eng.StopContinuous())
	stopped := waitFor(t, obs, event.TypeWorkflowEvent, func(env event.Envelope) bool {
		return env.Data.(event.WorkflowEvent).Event == event.ContinuousStopped
	})
	assert.Equal(t, "doubler", stopped.Data.(event.WorkflowEvent).Name)
	assert.False(t, eng.Status().IsRunning)

	require.NoError(t, eng.UpdateInput("ghost", "x", 1), "no validation once stopped")
}

func TestRunOnce(t *testing.T) {
	eng, _ := newEngine(t, time.Second)
	require.NoError(t, eng.UpdateInput("n", "x", 4))

	res, err := eng.RunOnce(context.Background(), doubler())
	require.NoError(t, err)
	assert.Equal(t, 8.0, res.Results["n"]["output"])

	env := eng.StatusEnvelope()
	assert.Equal(t, event.TypeExecutionStatus, env.Type)
	st := env.Data.(event.ExecutionStatus)
	assert.False(t, st.IsRunning)
	assert.Equal(t, int64(1), st.ExecutionCount)
	assert.Equal(t, 8.0, st.Results["n"]["output"])
}

func TestCompileFailureIsBroadcast(t *testing.T) {
	eng, obs := newEngine(t, time.Second)
	wf := &model.Workflow{Name: "bad", Nodes: []model.NodeSpec{{ID: "n", Type: "missing"}}}

	err := eng.StartContinuous(wf)
	var cerr *dag.CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, dag.KindUnknownType, cerr.Kind)
	assert.False(t, eng.Status().IsRunning)

	env := waitFor(t, obs, event.TypeWorkflowEvent, nil)
	we := env.Data.(event.WorkflowEvent)
	assert.Equal(t, event.WorkflowError, we.Event)
	assert.Contains(t, we.Error, "not registered")

	_, err = eng.RunOnce(context.Background(), wf)
	assert.ErrorAs(t, err, &cerr)
}

func TestSetInterval(t *testing.T) {
	eng, _ := newEngine(t, time.Second)
	require.Error(t, eng.SetInterval(-time.Second))
	require.NoError(t, eng.SetInterval(100*time.Millisecond))
	assert.Equal(t, 0.1, eng.Status().LoopInterval)
}

func TestStatusReportsOverridesAndBroadcast(t *testing.T) {
	eng, _ := newEngine(t, time.Second)
	require.NoError(t, eng.UpdateInput("n", "x", 4))
	require.NoError(t, eng.UpdateInput("m", "y", "a"))

	st := eng.Status()
	require.Len(t, st.Overrides, 2)
	assert.Equal(t, "m", st.Overrides[0].NodeID)
	assert.Equal(t, "n", st.Overrides[1].NodeID)
	assert.Equal(t, 4, st.Overrides[1].Value)
	assert.Positive(t, st.Overrides[1].ReceivedAt)

	assert.Equal(t, 1, st.Observers)
	assert.Equal(t, []string{"test"}, st.Broadcast.ObserverIDs)
	assert.Equal(t, int64(2), st.Broadcast.Published, "one parameter_updated per override")
	assert.Zero(t, st.Broadcast.Evictions)

	eng.ClearOverrides("m")
	st = eng.Status()
	require.Len(t, st.Overrides, 1)
	assert.Equal(t, "n", st.Overrides[0].NodeID)

	eng.ClearOverrides("")
	assert.Empty(t, eng.Status().Overrides)
	assert.Zero(t, eng.Overrides().Len())
}
