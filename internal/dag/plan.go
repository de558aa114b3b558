package dag

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/vk/flowloop/internal/node"
	"github.com/vk/flowloop/internal/registry"
)

// InputBinding wires one input of an entry to an output of an earlier entry.
type InputBinding struct {
	// Input is the consumer's input port name.
	Input string
	// Producer is the plan index of the producing entry.
	Producer int
	// ProducerID is the producing node's ID.
	ProducerID string
	// Output is the producer's output port name.
	Output string
	// Fallback is the producer's declared default for Output, used when the
	// producer failed in the current cycle.
	Fallback any
}

// PlanEntry is one node of a compiled plan.
type PlanEntry struct {
	NodeID   string
	Type     string
	Kind     registry.Kind
	Node     node.Node
	Params   map[string]any
	Inputs   node.Schema
	Outputs  node.Schema
	Bindings []InputBinding

	bound map[string]int
}

// Binding returns the edge binding for an input, if one exists.
func (e *PlanEntry) Binding(input string) (InputBinding, bool) {
	i, ok := e.bound[input]
	if !ok {
		return InputBinding{}, false
	}
	return e.Bindings[i], true
}

// IsBound reports whether an upstream edge feeds the input.
func (e *PlanEntry) IsBound(input string) bool {
	_, ok := e.bound[input]
	return ok
}

// Plan is an immutable, topologically ordered execution plan. It is safe to
// read from several goroutines; only Close changes it.
type Plan struct {
	name     string
	interval time.Duration
	entries  []PlanEntry
	index    map[string]int
	upstream [][]int

	closeOnce sync.Once
	closeErr  error
}

// Name returns the workflow name the plan was compiled from.
func (p *Plan) Name() string { return p.name }

// Interval returns the interval the workflow asked for, or zero.
func (p *Plan) Interval() time.Duration { return p.interval }

// Len returns the number of entries.
func (p *Plan) Len() int { return len(p.entries) }

// Entry returns the entry at plan index i. Callers must not modify it.
func (p *Plan) Entry(i int) *PlanEntry { return &p.entries[i] }

// IndexOf returns the plan index of a node ID.
func (p *Plan) IndexOf(nodeID string) (int, bool) {
	i, ok := p.index[nodeID]
	return i, ok
}

// Upstream returns the plan indices of the entries that feed entry i.
func (p *Plan) Upstream(i int) []int { return p.upstream[i] }

// Order returns the node IDs in execution order.
func (p *Plan) Order() []string {
	ids := make([]string, len(p.entries))
	for i := range p.entries {
		ids[i] = p.entries[i].NodeID
	}
	return ids
}

// Close releases every node instance that implements io.Closer. It runs
// once; later calls return the first result.
func (p *Plan) Close() error {
	p.closeOnce.Do(func() {
		nodes := make([]node.Node, len(p.entries))
		for i := range p.entries {
			nodes[i] = p.entries[i].Node
		}
		p.closeErr = closeNodes(nodes, func(i int) string { return p.entries[i].NodeID })
	})
	return p.closeErr
}

// closeNodes closes instances in reverse creation order.
func closeNodes(nodes []node.Node, idOf func(int) string) error {
	var errs []error
	for i := len(nodes) - 1; i >= 0; i-- {
		c, ok := nodes[i].(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close node '%s': %w", idOf(i), err))
		}
	}
	return errors.Join(errs...)
}
