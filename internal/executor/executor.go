package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/vk/flowloop/internal/ctxlog"
	"github.com/vk/flowloop/internal/dag"
	"github.com/vk/flowloop/internal/event"
	"github.com/vk/flowloop/internal/inmemorystore"
	"github.com/vk/flowloop/internal/model"
	"github.com/vk/flowloop/internal/overrides"
)

// DefaultNodeTimeout bounds a single node execution when Options leaves it unset.
const DefaultNodeTimeout = 5 * time.Second

// Publisher receives every event the loop produces. Publish must not block.
type Publisher interface {
	Publish(env event.Envelope)
}

// OverrideSource provides the override view frozen at each cycle start.
type OverrideSource interface {
	View() *overrides.View
}

// Options configures an Executor.
type Options struct {
	// Interval is the pause between cycles. A plan compiled from a workflow
	// that sets its own interval overrides it for that run only.
	Interval time.Duration
	// NodeTimeout bounds each node execution.
	NodeTimeout time.Duration
	// MaxCycles stops a continuous run after that many cycles. Zero means
	// run until stopped.
	MaxCycles int64
}

type mode int

const (
	modeIdle mode = iota
	modeContinuous
	modeOnce
)

// Executor runs one plan at a time, either continuously or for a single cycle.
type Executor struct {
	pub       Publisher
	overrides OverrideSource
	states    *inmemorystore.Store
	tracer    trace.Tracer

	nodeTimeout time.Duration
	maxCycles   int64
	interval    atomic.Int64
	base        atomic.Int64
	cycles      atomic.Int64
	lastCycle   atomic.Int64

	mu   sync.Mutex
	mode mode
	plan *dag.Plan
	stop func()
	done chan struct{}
}

// New creates an idle executor.
func New(pub Publisher, ov OverrideSource, opts Options) *Executor {
	if opts.NodeTimeout <= 0 {
		opts.NodeTimeout = DefaultNodeTimeout
	}
	if opts.Interval <= 0 {
		opts.Interval = model.DefaultInterval
	}
	if ov == nil {
		ov = overrides.New()
	}
	done := make(chan struct{})
	close(done)

	e := &Executor{
		pub:         pub,
		overrides:   ov,
		states:      inmemorystore.New(),
		tracer:      otel.Tracer("flowloop/executor"),
		nodeTimeout: opts.NodeTimeout,
		maxCycles:   opts.MaxCycles,
		stop:        func() {},
		done:        done,
	}
	e.interval.Store(int64(opts.Interval))
	e.base.Store(int64(opts.Interval))
	return e
}

// Start launches the continuous loop for plan and returns immediately. The
// executor takes ownership of the plan and closes it when the loop exits.
// The loop also exits when ctx is cancelled.
func (e *Executor) Start(ctx context.Context, plan *dag.Plan) error {
	e.mu.Lock()
	if e.mode != modeIdle {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	e.mode = modeContinuous
	e.plan = plan
	e.stop = sync.OnceFunc(func() { close(stop) })
	e.done = done
	e.cycles.Store(0)
	e.lastCycle.Store(0)
	e.states.Reset()
	if d := plan.Interval(); d > 0 {
		e.interval.Store(int64(d))
	} else {
		e.interval.Store(e.base.Load())
	}
	e.mu.Unlock()

	ctx, logger := ctxlog.With(ctx, "workflow", plan.Name())
	logger.Info("Continuous execution started.", "nodes", plan.Len(), "interval", e.Interval())
	e.publish(event.TypeWorkflowEvent, event.WorkflowEvent{
		Event:   event.ContinuousStarted,
		Name:    plan.Name(),
		Message: fmt.Sprintf("Continuous execution started with %s interval", e.Interval()),
	})

	go e.loop(ctx, plan, stop, done)
	return nil
}

// Stop ends a continuous run. The cycle in flight completes; Stop returns
// once the loop has exited. It is a no-op when nothing is running.
func (e *Executor) Stop() {
	e.mu.Lock()
	if e.mode != modeContinuous {
		e.mu.Unlock()
		return
	}
	stop, done := e.stop, e.done
	e.mu.Unlock()

	stop()
	<-done
}

// Done returns a channel closed when the current or last continuous run has
// exited.
func (e *Executor) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

// IsRunning reports whether a continuous run is active.
func (e *Executor) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode == modeContinuous
}

// ActivePlan returns the plan of the continuous run, or nil when idle.
func (e *Executor) ActivePlan() *dag.Plan {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode != modeContinuous {
		return nil
	}
	return e.plan
}

// Interval returns the current pause between cycles.
func (e *Executor) Interval() time.Duration {
	return time.Duration(e.interval.Load())
}

// SetInterval changes the pause between cycles. It takes effect from the
// next sleep. Set while idle, it also becomes the default for later runs.
func (e *Executor) SetInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, d)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.interval.Store(int64(d))
	if e.mode == modeIdle {
		e.base.Store(int64(d))
	}
	return nil
}

// RunOnce executes a single cycle of plan synchronously. The caller keeps
// ownership of the plan.
func (e *Executor) RunOnce(ctx context.Context, plan *dag.Plan) (CycleResult, error) {
	e.mu.Lock()
	if e.mode != modeIdle {
		e.mu.Unlock()
		return CycleResult{}, ErrAlreadyRunning
	}
	e.mode = modeOnce
	e.plan = plan
	e.states.Reset()
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.mode = modeIdle
		e.mu.Unlock()
	}()

	ctx, logger := ctxlog.With(ctx, "workflow", plan.Name())
	e.publish(event.TypeWorkflowEvent, event.WorkflowEvent{Event: event.WorkflowStarted, Name: plan.Name()})

	e.cycles.Store(1)
	res := e.runCycle(ctx, plan, 1, false)

	logger.Info("Workflow run finished.", "duration", res.Duration, "failed_nodes", len(res.Errors))
	e.publish(event.TypeWorkflowEvent, event.WorkflowEvent{
		Event:   event.WorkflowCompleted,
		Name:    plan.Name(),
		Message: fmt.Sprintf("Workflow executed in %s with %d failed node(s)", res.Duration, len(res.Errors)),
	})
	return res, nil
}

func (e *Executor) loop(ctx context.Context, plan *dag.Plan, stop <-chan struct{}, done chan<- struct{}) {
	logger := ctxlog.FromContext(ctx)

	defer func() {
		if err := plan.Close(); err != nil {
			logger.Warn("Failed to close node instances.", "error", err)
		}
		e.mu.Lock()
		e.mode = modeIdle
		e.mu.Unlock()

		cycles := e.cycles.Load()
		logger.Info("Continuous execution stopped.", "cycles", cycles)
		e.publish(event.TypeWorkflowEvent, event.WorkflowEvent{
			Event:   event.ContinuousStopped,
			Name:    plan.Name(),
			Message: "Continuous execution stopped",
			Cycles:  cycles,
		})
		close(done)
	}()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		cycle := e.cycles.Add(1)
		e.runCycle(ctx, plan, cycle, true)

		if e.maxCycles > 0 && cycle >= e.maxCycles {
			logger.Debug("Cycle limit reached.", "cycles", cycle)
			return
		}

		timer := time.NewTimer(e.Interval())
		select {
		case <-stop:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (e *Executor) publish(t event.Type, data any) {
	if e.pub == nil {
		return
	}
	e.pub.Publish(event.New(t, data))
}
