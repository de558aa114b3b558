package model

import (
	"fmt"
	"strings"
	"time"
)

// Default port names used when an edge does not name one.
const (
	DefaultOutput = "output"
	DefaultInput  = "input"
)

// DefaultInterval is the pause between cycles when a workflow does not set one.
const DefaultInterval = time.Second

// NodeSpec describes one node instance of a workflow.
type NodeSpec struct {
	// ID is unique within the workflow.
	ID string `json:"id"`
	// Type names a registered node definition.
	Type string `json:"type"`
	// Params are static input values and construction parameters.
	Params map[string]any `json:"params,omitempty"`
}

// Param returns a static parameter and whether it was set.
func (n NodeSpec) Param(name string) (any, bool) {
	v, ok := n.Params[name]
	return v, ok
}

// EdgeSpec connects an output port of one node to an input port of another.
type EdgeSpec struct {
	From       string `json:"from"`
	FromOutput string `json:"from_output"`
	To         string `json:"to"`
	ToInput    string `json:"to_input"`
}

// String renders the edge as "from.output -> to.input".
func (e EdgeSpec) String() string {
	return fmt.Sprintf("%s.%s -> %s.%s", e.From, e.FromOutput, e.To, e.ToInput)
}

// Normalized returns a copy with empty port names replaced by the defaults.
func (e EdgeSpec) Normalized() EdgeSpec {
	if strings.TrimSpace(e.FromOutput) == "" {
		e.FromOutput = DefaultOutput
	}
	if strings.TrimSpace(e.ToInput) == "" {
		e.ToInput = DefaultInput
	}
	return e
}

// Workflow is an authoring document: nodes, edges and the continuous-run
// interval. It is not validated; see dag.Compile.
type Workflow struct {
	Name     string         `json:"name,omitempty"`
	Nodes    []NodeSpec     `json:"nodes"`
	Edges    []EdgeSpec     `json:"edges"`
	Interval time.Duration  `json:"-"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// EffectiveInterval returns Interval, or DefaultInterval when unset.
func (w *Workflow) EffectiveInterval() time.Duration {
	if w == nil || w.Interval <= 0 {
		return DefaultInterval
	}
	return w.Interval
}

// Node returns the node with the given id.
func (w *Workflow) Node(id string) (NodeSpec, bool) {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return NodeSpec{}, false
}
