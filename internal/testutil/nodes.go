package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vk/flowloop/internal/model"
	"github.com/vk/flowloop/internal/node"
	"github.com/vk/flowloop/internal/registry"
)

// ErrInjected is returned by the "failing" test node.
var ErrInjected = errors.New("injected failure")

// RecordingModule registers small deterministic node types and records the
// inputs of every execution:
//
//	identity  input -> output
//	double    x -> output (x * 2)
//	failing   always fails; its output default comes from the "default" param
//	panicking always panics
//	closer    identity that counts Close calls
type RecordingModule struct {
	mu     sync.Mutex
	calls  map[string][]node.Inputs
	closed map[string]int
}

// NewRecordingModule creates an empty recorder.
func NewRecordingModule() *RecordingModule {
	return &RecordingModule{
		calls:  make(map[string][]node.Inputs),
		closed: make(map[string]int),
	}
}

// Calls returns the inputs seen by one node, in execution order.
func (m *RecordingModule) Calls(nodeID string) []node.Inputs {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]node.Inputs(nil), m.calls[nodeID]...)
}

// Closed returns how often a node instance was closed.
func (m *RecordingModule) Closed(nodeID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed[nodeID]
}

func (m *RecordingModule) record(nodeID string, in node.Inputs) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[nodeID] = append(m.calls[nodeID], in.Clone())
}

// Register implements registry.Module.
func (m *RecordingModule) Register(r *registry.Registry) {
	r.Register(registry.Definition{
		Type: "identity",
		Kind: registry.KindProcessing,
		Factory: func(spec model.NodeSpec) (node.Node, error) {
			return &node.Func{
				In:  node.Schema{{Name: "input"}},
				Out: node.Schema{{Name: "output"}},
				Fn: func(_ context.Context, in node.Inputs) (node.Output, error) {
					m.record(spec.ID, in)
					return node.Single(in["input"]), nil
				},
			}, nil
		},
	})
	r.Register(registry.Definition{
		Type: "double",
		Kind: registry.KindProcessing,
		Factory: func(spec model.NodeSpec) (node.Node, error) {
			return &node.Func{
				In:  node.Schema{{Name: "x", Type: node.TypeFloat, Default: 0.0}},
				Out: node.Schema{{Name: "output", Type: node.TypeFloat}},
				Fn: func(_ context.Context, in node.Inputs) (node.Output, error) {
					m.record(spec.ID, in)
					x, err := in.Float("x")
					if err != nil {
						return node.Output{}, err
					}
					return node.Single(x * 2), nil
				},
			}, nil
		},
	})
	r.Register(registry.Definition{
		Type: "failing",
		Kind: registry.KindProcessing,
		Factory: func(spec model.NodeSpec) (node.Node, error) {
			fallback, _ := spec.Param("default")
			return &node.Func{
				In:  node.Schema{{Name: "input"}},
				Out: node.Schema{{Name: "output", Default: fallback}},
				Fn: func(_ context.Context, in node.Inputs) (node.Output, error) {
					m.record(spec.ID, in)
					return node.Output{}, fmt.Errorf("%s: %w", spec.ID, ErrInjected)
				},
			}, nil
		},
	})
	r.Register(registry.Definition{
		Type: "panicking",
		Kind: registry.KindProcessing,
		Factory: func(spec model.NodeSpec) (node.Node, error) {
			return &node.Func{
				Out: node.Schema{{Name: "output"}},
				Fn: func(context.Context, node.Inputs) (node.Output, error) {
					panic("kaboom")
				},
			}, nil
		},
	})
	r.Register(registry.Definition{
		Type: "closer",
		Kind: registry.KindProcessing,
		Factory: func(spec model.NodeSpec) (node.Node, error) {
			return &closerNode{
				Func: node.Func{
					In:  node.Schema{{Name: "input"}},
					Out: node.Schema{{Name: "output"}},
					Fn: func(_ context.Context, in node.Inputs) (node.Output, error) {
						m.record(spec.ID, in)
						return node.Output{Values: map[string]any{"output": in["input"]}, SideChannel: "rt"}, nil
					},
				},
				onClose: func() {
					m.mu.Lock()
					m.closed[spec.ID]++
					m.mu.Unlock()
				},
			}, nil
		},
	})
}

type closerNode struct {
	node.Func
	onClose func()
}

func (c *closerNode) Close() error {
	c.onClose()
	return nil
}
