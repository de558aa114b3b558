package script

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dop251/goja"

	"github.com/vk/flowloop/internal/ctxlog"
	"github.com/vk/flowloop/internal/node"
)

// hiddenGlobals are removed from every runtime.
var hiddenGlobals = []string{
	"require", "module", "exports", "process", "global",
	"__dirname", "__filename", "Buffer", "setImmediate", "clearImmediate",
}

// Node runs one compiled program. The runtime is created on first use and
// reused across cycles.
type Node struct {
	id      string
	program *goja.Program
	in, out node.Schema

	mu sync.Mutex
	vm *goja.Runtime
}

// Inputs implements node.Node.
func (n *Node) Inputs() node.Schema { return n.in }

// Outputs implements node.Node.
func (n *Node) Outputs() node.Schema { return n.out }

// Execute implements node.Node. The runtime is interrupted when ctx ends.
func (n *Node) Execute(ctx context.Context, in node.Inputs) (node.Output, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	vm, err := n.runtime(ctx)
	if err != nil {
		return node.Output{}, err
	}

	done := make(chan struct{})
	watcher := make(chan struct{})
	go func() {
		defer close(watcher)
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()
	defer func() {
		close(done)
		<-watcher
		vm.ClearInterrupt()
	}()

	inputs := make(map[string]any, len(n.in))
	for _, p := range n.in {
		inputs[p.Name] = node.CloneValue(in[p.Name])
	}
	if err := vm.Set("inputs", inputs); err != nil {
		return node.Output{}, fmt.Errorf("failed to set inputs: %w", err)
	}
	if err := vm.Set("rt", goja.Undefined()); err != nil {
		return node.Output{}, fmt.Errorf("failed to reset rt: %w", err)
	}

	value, err := vm.RunProgram(n.program)
	if err != nil {
		return node.Output{}, scriptError(err)
	}

	out := node.Output{Values: make(map[string]any, len(n.out))}
	result := export(value)
	if len(n.out) == 1 {
		out.Values[n.out[0].Name] = result
	} else {
		obj, ok := result.(map[string]any)
		if !ok {
			return node.Output{}, fmt.Errorf("script declares %d outputs and must return an object, got %T", len(n.out), result)
		}
		for _, p := range n.out {
			if v, ok := obj[p.Name]; ok {
				out.Values[p.Name] = v
			}
		}
	}
	if rt := vm.Get("rt"); rt != nil && !goja.IsUndefined(rt) {
		out.SideChannel = rt.Export()
	}
	return out, nil
}

func (n *Node) runtime(ctx context.Context) (*goja.Runtime, error) {
	if n.vm != nil {
		return n.vm, nil
	}
	vm := goja.New()
	for _, name := range hiddenGlobals {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return nil, fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}

	logger := ctxlog.FromContext(ctx).With("node", n.id)
	console := vm.NewObject()
	if err := console.Set("log", func(call goja.FunctionCall) goja.Value {
		args := make([]any, len(call.Arguments))
		for i, a := range call.Arguments {
			args[i] = a.Export()
		}
		logger.Debug("Script log.", "args", args)
		return goja.Undefined()
	}); err != nil {
		return nil, err
	}
	if err := vm.Set("console", console); err != nil {
		return nil, err
	}

	n.vm = vm
	return vm, nil
}

func export(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}

// scriptError converts goja failures into plain errors.
func scriptError(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cause, ok := interrupted.Value().(error); ok {
			return fmt.Errorf("script interrupted: %w", cause)
		}
		return fmt.Errorf("script interrupted: %v", interrupted.Value())
	}
	var exc *goja.Exception
	if errors.As(err, &exc) {
		return fmt.Errorf("script error: %s", exc.Error())
	}
	return fmt.Errorf("script error: %w", err)
}
