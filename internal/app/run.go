package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vk/flowloop/internal/broadcast"
	"github.com/vk/flowloop/internal/ctxlog"
	"github.com/vk/flowloop/internal/engine"
	"github.com/vk/flowloop/internal/executor"
	"github.com/vk/flowloop/internal/model"
	"github.com/vk/flowloop/internal/natsbridge"
	"github.com/vk/flowloop/internal/overrides"
	"github.com/vk/flowloop/internal/server"
	"github.com/vk/flowloop/internal/tracing"
)

// Report is the result of a single cycle as --once prints it.
type Report struct {
	Success    bool                      `json:"success"`
	Cycle      int64                     `json:"cycle"`
	DurationMS float64                   `json:"duration_ms"`
	Results    map[string]map[string]any `json:"results"`
	Errors     map[string]string         `json:"errors,omitempty"`
}

// Run executes the main application logic until ctx is cancelled, a single
// cycle finishes (--once) or the configured number of cycles has run.
func (a *App) Run(ctx context.Context) error {
	ctx = a.context(ctx)
	a.logger.Debug("App.Run method started.")

	tc := tracing.DefaultConfig("flowloop")
	tc.OTLPEndpoint = a.config.OTLPEndpoint
	shutdown, err := tracing.Setup(ctx, tc)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		if err := tracing.Stop(context.WithoutCancel(ctx), shutdown); err != nil {
			a.logger.Warn("Tracing shutdown failed.", "error", err)
		}
	}()

	var wf *model.Workflow
	if a.config.WorkflowPath != "" {
		if wf, err = a.LoadWorkflow(ctx, a.config.WorkflowPath); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eng := a.newEngine(ctx)
	defer eng.Close()

	if a.config.Once {
		return a.runOnce(ctx, eng, wf)
	}
	return a.serve(ctx, cancel, eng, wf)
}

func (a *App) newEngine(ctx context.Context) *engine.Engine {
	store := overrides.New()
	hub := broadcast.New(ctx, a.config.QueueSize)
	exec := executor.New(hub, store, executor.Options{
		Interval:    a.config.Interval,
		NodeTimeout: a.config.NodeTimeout,
		MaxCycles:   a.config.MaxCycles,
	})
	return engine.New(ctx, a.registry, store, hub, exec)
}

func (a *App) runOnce(ctx context.Context, eng *engine.Engine, wf *model.Workflow) error {
	a.logger.Info("Running a single cycle...")
	result, err := eng.RunOnce(ctx, wf)
	if err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}

	report := Report{
		Success:    len(result.Errors) == 0,
		Cycle:      result.Cycle,
		DurationMS: float64(result.Duration) / float64(time.Millisecond),
		Results:    result.Results,
		Errors:     result.ErrorStrings(),
	}
	enc := json.NewEncoder(a.outW)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	a.logger.Info("Execution finished.", "success", report.Success)
	return nil
}

func (a *App) serve(ctx context.Context, cancel context.CancelFunc, eng *engine.Engine, wf *model.Workflow) error {
	g, ctx := errgroup.WithContext(ctx)

	if a.config.NATSURL != "" {
		conn, err := natsbridge.Connect(ctx, natsbridge.DefaultConnectionConfig(a.config.NATSURL))
		if err != nil {
			return err
		}
		defer func() {
			if err := natsbridge.Close(conn); err != nil {
				a.logger.Warn("NATS drain failed.", "error", err)
			}
		}()
		bridge := natsbridge.New(conn, eng, a.config.NATSSubject)
		g.Go(func() error { return bridge.Run(ctx, eng.Hub()) })
	}

	if wf != nil {
		if err := eng.StartContinuous(wf); err != nil {
			return fmt.Errorf("failed to start workflow: %w", err)
		}
		a.logger.Info("Continuous execution started.", "interval", eng.Status().LoopInterval)
		if a.config.MaxCycles > 0 {
			// The loop exits by itself after MaxCycles.
			done := eng.Done()
			g.Go(func() error {
				select {
				case <-done:
					a.logger.Info("Cycle limit reached, shutting down.", "cycles", a.config.MaxCycles)
					cancel()
				case <-ctx.Done():
				}
				return nil
			})
		}
	}

	srv := server.New(ctx, eng, server.Options{
		Addr:           a.config.Listen,
		AllowedOrigins: a.config.AllowedOrigins,
	})
	g.Go(func() error { return srv.ListenAndServe(ctx) })

	err := g.Wait()
	ctxlog.FromContext(ctx).Debug("App.Run method finished.")
	return err
}
